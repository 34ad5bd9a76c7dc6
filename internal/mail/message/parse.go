package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

func init() {
	// Decode non-UTF-8 bodies and encoded-word headers using the
	// declared charset instead of failing the whole message.
	gomessage.CharsetReader = charset.Reader
}

// HeaderError is the typed rejection for a message missing a required
// header. The content of a rejected message will never change, so the
// caller logs and skips it permanently instead of retrying.
type HeaderError struct {
	Header string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("missing %q header", e.Header)
}

// IsHeaderError reports whether err (or any error in its chain) is a
// HeaderError.
func IsHeaderError(err error) bool {
	var headerErr *HeaderError
	return errors.As(err, &headerErr)
}

// Message is the structured form of one inbound email, reduced to the
// fields the reconciliation pipeline needs.
type Message struct {
	// Subject is the decoded Subject header.
	Subject string

	// From is the raw From header text, kept verbatim so unmapped
	// external senders remain attributable.
	From string

	// FromAddress is the bare address portion of the first From
	// mailbox, used for user matching.
	FromAddress string

	// MessageID is the raw Message-ID header value, angle brackets
	// included. Stored verbatim as the comment idempotency key.
	MessageID string

	// References holds the whitespace-delimited tokens of the
	// References header, newest token last per RFC 5322 convention.
	References []string

	// Body is the extracted plain-text body: the text/plain part when
	// present, else the text/html part stripped to text, else empty.
	Body string
}

// Parse converts a raw RFC 822 message into a Message. A message
// lacking Message-ID, From, or Subject returns a *HeaderError.
func Parse(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	header := mr.Header

	messageID := strings.TrimSpace(header.Get("Message-Id"))
	if messageID == "" {
		return nil, &HeaderError{Header: "Message-ID"}
	}

	from := strings.TrimSpace(header.Get("From"))
	if from == "" {
		return nil, &HeaderError{Header: "From"}
	}

	if !header.Has("Subject") {
		return nil, &HeaderError{Header: "Subject"}
	}
	subject, err := header.Subject()
	if err != nil {
		// Undecodable encoded words: fall back to the raw value.
		subject = strings.TrimSpace(header.Get("Subject"))
	}

	msg := &Message{
		Subject:    subject,
		From:       from,
		MessageID:  messageID,
		References: strings.Fields(header.Get("References")),
	}

	if addrs, err := header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.FromAddress = addrs[0].Address
	}

	msg.Body = extractBody(mr)

	return msg, nil
}

// extractBody walks the MIME parts, preferring text/plain and falling
// back to stripped text/html.
func extractBody(mr *mail.Reader) string {
	var textBody, htmlBody string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}

	if textBody != "" {
		return textBody
	}
	if htmlBody != "" {
		return stripHTML(htmlBody)
	}
	return ""
}
