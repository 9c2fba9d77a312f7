package email

import (
	"bytes"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/pkg/types"
)

// previewRunes bounds the cached body preview.
const previewRunes = 200

// assemblyState tracks which of the two fetch events a message still waits
// for. Attributes and body arrive as separate events in no guaranteed order.
type assemblyState int

const (
	awaitingAttributes assemblyState = iota
	awaitingBody
	ready
)

// attributes is the envelope-level event of a fetch: everything the server
// reports about a message without touching its body.
type attributes struct {
	uid          uint32
	subject      string
	fromName     string
	fromAddress  string
	date         time.Time
	internalDate time.Time
	flags        []string
}

// assembly joins the attribute and body events of one message into a typed
// value, completing regardless of arrival order. A message whose body event
// never arrives still becomes ready at finalize with an empty preview, so
// attributes-only fetches stay usable.
type assembly struct {
	state     assemblyState
	attrsDone bool
	bodyDone  bool
	msg       types.Message
	logger    *logrus.Logger
}

func newAssembly(folder, account string, logger *logrus.Logger) *assembly {
	return &assembly{
		state:  awaitingAttributes,
		logger: logger,
		msg: types.Message{
			Folder:  folder,
			Account: account,
		},
	}
}

// feedAttributes consumes the envelope event.
func (a *assembly) feedAttributes(at attributes) {
	a.msg.UID = at.uid
	a.msg.Subject = at.subject
	a.msg.FromName = at.fromName
	a.msg.FromAddress = at.fromAddress
	a.msg.Flags = at.flags

	// Servers occasionally deliver envelopes with a zero date; the internal
	// date is always present.
	a.msg.Date = at.date
	if a.msg.Date.IsZero() {
		a.msg.Date = at.internalDate
	}

	a.attrsDone = true
	a.advance()
}

// feedBody consumes the raw RFC822 literal event. Parse failures degrade to
// an empty preview; the message stays usable from its attributes.
func (a *assembly) feedBody(raw []byte) {
	a.bodyDone = true
	defer a.advance()

	if len(raw) == 0 {
		return
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		a.logger.WithError(err).WithField("uid", a.msg.UID).Debug("Failed to parse message body")
		return
	}

	// enmime down-converts HTML-only bodies into Text.
	a.msg.Preview = makePreview(env.Text)
	a.msg.ThreadCount = countReferences(env)

	for _, part := range env.Attachments {
		a.msg.Attachments = append(a.msg.Attachments, types.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
			ContentID:   part.ContentID,
		})
	}
	a.msg.HasAttachments = len(a.msg.Attachments) > 0
}

func (a *assembly) advance() {
	switch {
	case a.attrsDone && a.bodyDone:
		a.state = ready
	case a.attrsDone:
		a.state = awaitingBody
	default:
		a.state = awaitingAttributes
	}
}

// finalize marks the assembly ready at stream end and returns the message.
func (a *assembly) finalize() types.Message {
	a.state = ready
	return a.msg
}

// makePreview collapses whitespace and truncates to previewRunes runes.
func makePreview(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= previewRunes {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:previewRunes])
}

// countReferences derives the thread-reference count from the References
// header, falling back to In-Reply-To when References is absent.
func countReferences(env *enmime.Envelope) int {
	if refs := strings.Fields(env.GetHeader("References")); len(refs) > 0 {
		return len(refs)
	}
	if env.GetHeader("In-Reply-To") != "" {
		return 1
	}
	return 0
}
