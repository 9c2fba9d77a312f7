package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	gosync "sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/internal/config"
	"github.com/brandon/mailmirror/pkg/types"
)

// Connection bounds. The application watchdog layers on top of these; they
// exist so a dead server cannot hold a refresh forever.
const (
	dialTimeout    = 15 * time.Second
	commandTimeout = 60 * time.Second
)

// IMAPClient implements Client over a single IMAP connection. It connects
// lazily on first use and reconnects after Disconnect.
//
// The connection is stateful: Select and the command that follows must land on
// the same mailbox. mu holds the connection for the whole of each operation so
// concurrent callers cannot interleave commands.
type IMAPClient struct {
	config *config.AccountConfig
	logger *logrus.Logger

	mu        gosync.Mutex
	client    *client.Client
	connected bool
}

// NewIMAPClient creates a new IMAP client (does not connect immediately).
func NewIMAPClient(cfg *config.AccountConfig, logger *logrus.Logger) *IMAPClient {
	return &IMAPClient{
		config: cfg,
		logger: logger,
	}
}

// Connect establishes a connection to the IMAP server and authenticates.
// Failures wrap ErrRemoteUnavailable.
func (c *IMAPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// connectLocked dials and logs in. Callers hold mu.
func (c *IMAPClient) connectLocked(ctx context.Context) error {
	if c.connected && c.client != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", c.config.IMAPHost, c.config.IMAPPort)

	dialer := &net.Dialer{Timeout: dialTimeout}
	cl, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{
		ServerName: c.config.IMAPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrRemoteUnavailable, addr, err)
	}
	cl.Timeout = commandTimeout

	if err := cl.Login(c.config.IMAPUsername, c.config.IMAPPassword); err != nil {
		c.logger.WithError(err).WithField("account", c.config.Name).Error("Failed to login to IMAP server")
		cl.Logout() //nolint:errcheck
		return fmt.Errorf("%w: login: %v", ErrRemoteUnavailable, err)
	}

	c.client = cl
	c.connected = true
	c.logger.WithField("account", c.config.Name).Info("Connected to IMAP server")
	return nil
}

// Disconnect closes the IMAP connection.
func (c *IMAPClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Logout()
	c.client = nil
	c.connected = false
	return err
}

// GetFolders lists all mailboxes on the server.
func (c *IMAPClient) GetFolders(ctx context.Context) ([]types.Folder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.List("", "*", mailboxes)
	}()

	var folders []types.Folder
	for m := range mailboxes {
		folders = append(folders, types.Folder{
			Name:       m.Name,
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// GetFolderStatus returns authoritative counts for a folder. Both counts come
// from SEARCH over existing messages rather than from the mailbox counters
// returned by SELECT, because those counters can be stale after external
// deletions.
func (c *IMAPClient) GetFolderStatus(ctx context.Context, folder string) (types.FolderStatus, error) {
	var status types.FolderStatus

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return status, err
	}
	if _, err := c.client.Select(folder, false); err != nil {
		return status, fmt.Errorf("failed to select folder: %w", err)
	}

	all, err := c.client.Search(imap.NewSearchCriteria())
	if err != nil {
		return status, fmt.Errorf("failed to count messages: %w", err)
	}
	status.Total = len(all)

	unseen := imap.NewSearchCriteria()
	unseen.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.client.Search(unseen)
	if err != nil {
		return status, fmt.Errorf("failed to count unseen messages: %w", err)
	}
	status.Unseen = len(ids)

	return status, nil
}

// FetchRange fetches the 1-based inclusive sequence range start..end from a
// folder. end == 0 means through the newest message. Out-of-bounds ends are
// clamped to the mailbox size.
func (c *IMAPClient) FetchRange(ctx context.Context, folder string, start, end uint32) ([]types.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	mbox, err := c.client.Select(folder, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder: %w", err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	if start < 1 {
		start = 1
	}
	if end == 0 || end > mbox.Messages {
		end = mbox.Messages
	}
	if start > end {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(start, end)

	// BODY.PEEK keeps the fetch from marking messages seen.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.Fetch(seqSet, items, messages)
	}()

	var result []types.Message
	for msg := range messages {
		result = append(result, c.assembleMessage(msg, section, folder))
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"account": c.config.Name,
		"folder":  folder,
		"range":   fmt.Sprintf("%d:%d", start, end),
		"count":   len(result),
	}).Debug("Fetched sequence range")

	return result, nil
}

// assembleMessage feeds the attribute and body events of one fetched message
// through an assembly and returns the typed result. The two events complete
// in either order; a missing body still yields a usable message.
func (c *IMAPClient) assembleMessage(msg *imap.Message, section *imap.BodySectionName, folder string) types.Message {
	asm := newAssembly(folder, c.config.Name, c.logger)

	if literal := msg.GetBody(section); literal != nil {
		asm.feedBody(readLiteral(literal, c.logger))
	}

	at := attributes{
		uid:          msg.Uid,
		internalDate: msg.InternalDate,
		flags:        append([]string(nil), msg.Flags...),
	}
	if msg.Envelope != nil {
		at.subject = msg.Envelope.Subject
		at.date = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			addr := msg.Envelope.From[0]
			at.fromName = addr.PersonalName
			at.fromAddress = addr.Address()
		}
	}
	asm.feedAttributes(at)

	return asm.finalize()
}

// SetFlag adds a flag to one message, addressed by UID.
func (c *IMAPClient) SetFlag(ctx context.Context, folder string, uid uint32, flag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	if _, err := c.client.Select(folder, false); err != nil {
		return fmt.Errorf("failed to select folder: %w", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.client.UidStore(seqSet, item, []interface{}{flag}, nil); err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

// readLiteral drains an IMAP literal into memory.
func readLiteral(literal imap.Literal, logger *logrus.Logger) []byte {
	body := make([]byte, 0, 8192)
	buf := make([]byte, 1024)
	for {
		n, err := literal.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.WithError(err).Error("Error reading literal")
			break
		}
	}
	return body
}
