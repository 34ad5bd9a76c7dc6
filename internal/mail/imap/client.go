package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// AuthError indicates that the mailbox rejected the configured
// credentials. Retrying without operator intervention is pointless, but
// the worker still backs off and retries so a transient server-side
// auth outage self-heals.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Client holds the connection settings for one mailbox. Dial opens a
// fresh session per polling cycle; reconnecting every cycle avoids
// repeated failures on a silently dropped connection.
type Client struct {
	host     string
	port     int
	username string
	password string
	folder   string
	timeout  time.Duration
}

// NewClient creates a new IMAP client configuration. timeout bounds the
// dial and every subsequent socket operation so a stalled server cannot
// hang a worker indefinitely.
func NewClient(host string, port int, username, password, folder string, timeout time.Duration) *Client {
	if folder == "" {
		folder = "INBOX"
	}
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		folder:   folder,
		timeout:  timeout,
	}
}

// Dial connects over implicit TLS, authenticates, and selects the
// configured folder read-write. The caller must Close the returned
// session on all exit paths.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	addr := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if c.timeout > 0 {
		// Socket deadline covers the whole session: one polling cycle
		// is expected to finish well within a few timeouts.
		_ = conn.SetDeadline(time.Now().Add(10 * c.timeout))
	}

	tlsConn := tls.Client(conn, &tls.Config{ServerName: c.host})
	client := imapclient.New(tlsConn, nil)

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Close()
		return nil, &AuthError{
			Username: c.username,
			Message:  fmt.Sprintf("authentication failed: %v", err),
		}
	}

	if _, err := client.Select(c.folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting folder %s: %w", c.folder, err)
	}

	return &Session{client: client, folder: c.folder}, nil
}

// Session is an authenticated IMAP connection with the tracker folder
// selected.
type Session struct {
	client *imapclient.Client
	folder string
}

// Search returns the UIDs of messages matching the tracker filter:
// every message when all is true, otherwise only unseen ones. UIDs come
// back in ascending mailbox order.
func (s *Session) Search(_ context.Context, all bool) ([]uint32, error) {
	criteria := &imap.SearchCriteria{}
	if !all {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching folder %s: %w", s.folder, err)
	}

	uids := data.AllUIDs()
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, uint32(uid))
	}
	return out, nil
}

// Fetch retrieves the full raw RFC822 content of one message. The
// fetch peeks, so the seen flag is only set once the message is
// actually retired.
func (s *Session) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body section", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch for UID %d: %w", uid, err)
	}

	return raw, nil
}

// MarkDeleted flags a message for deletion. The flag only takes effect
// at the next Expunge, so retirement stays a batch commit.
func (s *Session) MarkDeleted(_ context.Context, uid uint32) error {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	storeCmd := s.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging UID %d deleted: %w", uid, err)
	}
	return nil
}

// Expunge commits all deletion flags accumulated during the cycle in a
// single round-trip.
func (s *Session) Expunge(_ context.Context) error {
	if _, err := s.client.Expunge().Collect(); err != nil {
		return fmt.Errorf("expunging folder %s: %w", s.folder, err)
	}
	return nil
}

// Close logs out and tears down the connection.
func (s *Session) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		// Logout failing usually means the connection is already gone;
		// make sure the socket is released either way.
		_ = s.client.Close()
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
