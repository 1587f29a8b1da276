package broadcast

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tulikaff659/zolo/internal/transport"
)

var (
	ErrInvalidURL    = errors.New("url must start with http:// or https://")
	ErrInvalidButton = errors.New("invalid button")
	ErrStopped       = errors.New("broadcast service stopped")
	ErrQueueFull     = errors.New("broadcast queue full")
)

type Config struct {
	// Delay is the pause between two recipients.
	Delay       time.Duration
	QueueSize   int
	HistorySize int
	HistoryTTL  time.Duration
}

const (
	DefaultDelay       = 50 * time.Millisecond
	defaultQueueSize   = 16
	defaultHistorySize = 50
	defaultHistoryTTL  = 24 * time.Hour
)

type ButtonKind int

const (
	ButtonURL ButtonKind = iota + 1
	ButtonAsset
)

// Button is an action button attached to every delivered copy. Use URLButton
// or AssetButton; the zero value is not valid.
type Button struct {
	kind  ButtonKind
	label string
	url   string
}

// ValidateURL accepts absolute http and https URLs, scheme case-insensitive.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func URLButton(label, rawURL string) (Button, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Button{}, fmt.Errorf("%w: empty label", ErrInvalidButton)
	}
	if err := ValidateURL(rawURL); err != nil {
		return Button{}, err
	}
	return Button{kind: ButtonURL, label: label, url: strings.TrimSpace(rawURL)}, nil
}

func AssetButton(label string) (Button, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Button{}, fmt.Errorf("%w: empty label", ErrInvalidButton)
	}
	return Button{kind: ButtonAsset, label: label}, nil
}

func (b Button) Kind() ButtonKind { return b.kind }
func (b Button) Label() string    { return b.label }
func (b Button) URL() string      { return b.url }

// Job is one broadcast request. Recipients is copied when the job is queued.
type Job struct {
	Actor      int64
	Payload    transport.MessageRef
	Button     *Button
	Recipients []int64
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Recipient int64
	Err       error
}

type Report struct {
	ID         string
	Actor      int64
	Total      int
	Sent       int
	Failed     int
	Running    bool
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	// Results is only set on the report handed to the job's callback.
	Results []Result `json:"-"`
}

func (r Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
