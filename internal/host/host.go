// Package host defines what the equalizer needs from the browser: tab
// listing and focus, muting, capture handles and turning a handle into a
// media stream, plus tab lifecycle events.
package host

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/RMahshie/tabeq/internal/audio/graph"
)

// TabID identifies a browser tab
type TabID int

func (id TabID) String() string { return strconv.Itoa(int(id)) }

// ErrNoActiveTab is returned when no tab has focus
var ErrNoActiveTab = errors.New("no active tab")

// ErrUnknownTab is returned for tab ids the host does not know
var ErrUnknownTab = errors.New("unknown tab")

// ErrUnknownStream is returned for capture handles that were never issued or
// were already redeemed
var ErrUnknownStream = errors.New("unknown media stream id")

// Tab describes one browser tab
type Tab struct {
	ID     TabID
	Title  string
	URL    string
	Active bool
}

// EventKind is the kind of tab lifecycle event
type EventKind string

const (
	TabClosed    EventKind = "closed"
	TabNavigated EventKind = "navigated"
	TabBlurred   EventKind = "blurred"
)

// ParseEventKind validates an event kind
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case TabClosed, TabNavigated, TabBlurred:
		return k, nil
	}
	return "", fmt.Errorf("unknown tab event %q", s)
}

// TabEvent reports a lifecycle change of a tab
type TabEvent struct {
	Tab  TabID
	Kind EventKind
}

// Tabs controls browser tabs
type Tabs interface {
	List(ctx context.Context) ([]Tab, error)
	Active(ctx context.Context) (TabID, error)
	SetMuted(ctx context.Context, tab TabID, muted bool) error
}

// TabCapture issues capture handles for tabs
type TabCapture interface {
	GetMediaStreamID(ctx context.Context, tab TabID) (string, error)
}

// MediaDevices redeems a capture handle for a live stream
type MediaDevices interface {
	GetUserMedia(ctx context.Context, streamID string) (*graph.MediaStream, error)
}

// Host bundles everything a browser adapter provides
type Host interface {
	Tabs
	TabCapture
	MediaDevices
	Events() <-chan TabEvent
	Close() error
}
