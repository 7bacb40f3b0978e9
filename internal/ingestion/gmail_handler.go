package ingestion

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

const (
	defaultGmailUser  = "me"
	defaultGmailQuery = "has:attachment"
)

// ErrTokenMissing is returned when no OAuth token has been saved yet
var ErrTokenMissing = errors.New("gmail token not found, run the auth command first")

// GmailConfig describes how to reach the mailbox
type GmailConfig struct {
	CredentialsPath   string
	TokenPath         string
	User              string
	Query             string
	From              string
	RequestsPerSecond float64
	Burst             int
}

// GmailHandler fetches resume attachments and sends feedback through the Gmail API
type GmailHandler struct {
	service *gmail.Service
	files   *FileHandler
	user    string
	query   string
	from    string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// oauthConfig reads the client credentials file
func oauthConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return config, nil
}

// NewGmailHandler creates a Gmail handler from saved credentials and token
func NewGmailHandler(ctx context.Context, cfg GmailConfig, files *FileHandler, logger *zap.Logger) (*GmailHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config, err := oauthConfig(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(cfg.TokenPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrTokenMissing
		}
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}

	return newGmailHandler(srv, cfg, files, logger), nil
}

func newGmailHandler(srv *gmail.Service, cfg GmailConfig, files *FileHandler, logger *zap.Logger) *GmailHandler {
	user := cfg.User
	if user == "" {
		user = defaultGmailUser
	}
	query := cfg.Query
	if query == "" {
		query = defaultGmailQuery
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	return &GmailHandler{
		service: srv,
		files:   files,
		user:    user,
		query:   query,
		from:    cfg.From,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// Authorize runs the interactive OAuth flow and saves the token
func Authorize(ctx context.Context, credentialsPath, tokenPath string, in io.Reader, out io.Writer) error {
	config, err := oauthConfig(credentialsPath)
	if err != nil {
		return err
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code: \n%v\n", authURL)

	authCode, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("unable to read authorization code: %w", err)
	}
	authCode = strings.TrimSpace(authCode)
	if authCode == "" {
		return fmt.Errorf("authorization code is empty")
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("unable to retrieve token from web: %w", err)
	}

	fmt.Fprintf(out, "Saving credential file to: %s\n", tokenPath)
	return saveToken(tokenPath, tok)
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Fetch returns up to limit candidates from the newest matching messages.
// Only the message listing is fatal; per-message failures are logged and skipped.
func (gh *GmailHandler) Fetch(ctx context.Context, limit int) ([]models.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	if err := gh.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	r, err := gh.service.Users.Messages.List(gh.user).Q(gh.query).MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(r.Messages))
	for _, ref := range r.Messages {
		if len(candidates) >= limit {
			break
		}

		if err := gh.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		message, err := gh.service.Users.Messages.Get(gh.user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			gh.logger.Warn("unable to retrieve message", zap.String("message_id", ref.Id), zap.Error(err))
			continue
		}

		sender := senderAddress(message)
		for _, part := range attachmentParts(message.Payload) {
			if len(candidates) >= limit {
				break
			}

			data, err := gh.attachmentData(ctx, ref.Id, part)
			if err != nil {
				gh.logger.Warn("unable to retrieve attachment",
					zap.String("message_id", ref.Id),
					zap.String("filename", part.Filename),
					zap.Error(err),
				)
				continue
			}

			path, err := gh.files.SaveDocument(sender, part.Filename, data)
			if err != nil {
				gh.logger.Warn("unable to store attachment", zap.String("filename", part.Filename), zap.Error(err))
				continue
			}

			gh.logger.Debug("downloaded attachment", zap.String("sender", sender), zap.String("path", path))
			candidates = append(candidates, models.Candidate{
				Sender:       sender,
				DocumentPath: path,
				Filename:     part.Filename,
			})
		}
	}

	return candidates, nil
}

// attachmentData returns the decoded bytes of an attachment part
func (gh *GmailHandler) attachmentData(ctx context.Context, messageID string, part *gmail.MessagePart) ([]byte, error) {
	if part.Body == nil {
		return nil, fmt.Errorf("attachment has no body")
	}

	encoded := part.Body.Data
	if part.Body.AttachmentId != "" {
		if err := gh.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		attachment, err := gh.service.Users.Messages.Attachments.Get(gh.user, messageID, part.Body.AttachmentId).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		encoded = attachment.Data
	}

	return decodeBase64URL(encoded)
}

// Send delivers a plain-text email
func (gh *GmailHandler) Send(ctx context.Context, to, subject, body string) error {
	if err := gh.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := &gmail.Message{Raw: buildRawMessage(gh.from, to, subject, body)}
	if _, err := gh.service.Users.Messages.Send(gh.user, msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to send message to %s: %w", to, err)
	}
	return nil
}

// attachmentParts walks the MIME tree and returns parts carrying pdf or docx attachments
func attachmentParts(part *gmail.MessagePart) []*gmail.MessagePart {
	if part == nil {
		return nil
	}

	var found []*gmail.MessagePart
	if part.Filename != "" && IsSupportedAttachment(part.Filename) {
		found = append(found, part)
	}
	for _, child := range part.Parts {
		found = append(found, attachmentParts(child)...)
	}
	return found
}

// senderAddress extracts the mailbox address from the From header
func senderAddress(message *gmail.Message) string {
	if message.Payload == nil {
		return "unknown"
	}
	for _, header := range message.Payload.Headers {
		if !strings.EqualFold(header.Name, "From") {
			continue
		}
		if addr, err := mail.ParseAddress(header.Value); err == nil {
			return addr.Address
		}
		return strings.TrimSpace(header.Value)
	}
	return "unknown"
}

// buildRawMessage renders an RFC 2822 message and base64url-encodes it for the Gmail API
func buildRawMessage(from, to, subject, body string) string {
	var sb strings.Builder
	if from != "" {
		sb.WriteString("From: " + from + "\r\n")
	}
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)

	return base64.URLEncoding.EncodeToString([]byte(sb.String()))
}

func decodeBase64URL(s string) ([]byte, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	data, rawErr := base64.RawURLEncoding.DecodeString(s)
	if rawErr != nil {
		return nil, fmt.Errorf("unable to decode attachment: %w", err)
	}
	return data, nil
}
