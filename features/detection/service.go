// Package detection is the ingress for candidate elements. Reports arrive
// over HTTP or from a scan of a live page and are forwarded to the
// orchestrator as checkElement messages.
package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"adswap/internal/config"
	"adswap/internal/element"
	"adswap/internal/message"
	"adswap/internal/middleware"
)

var (
	ErrMissingTag     = errors.New("element tagName is required")
	ErrMissingContext = errors.New("contextId is required")
)

type Publisher interface {
	Publish(topic string, body []byte) error
}

// Scanner enumerates candidate elements on a live page.
type Scanner interface {
	Scan(ctx context.Context, selector string) ([]element.Descriptor, error)
	Viewport(ctx context.Context) (element.Viewport, error)
}

type Report struct {
	Element   element.Descriptor `json:"element"`
	ContextID string             `json:"contextId"`
	Viewport  *element.Viewport  `json:"viewport,omitempty"`
}

func (r Report) Validate() error {
	if strings.TrimSpace(r.Element.TagName) == "" {
		return ErrMissingTag
	}
	if strings.TrimSpace(r.ContextID) == "" {
		return ErrMissingContext
	}
	return nil
}

type Service struct {
	pub Publisher
}

func NewService(pub Publisher) *Service {
	return &Service{pub: pub}
}

// Report forwards one detection. Delivery is fire and forget.
func (s *Service) Report(ctx context.Context, r Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	correlationID, _ := middleware.LookupCorrelationID(ctx)
	body, err := message.Encode(message.CheckElement{
		Element:   r.Element.Clone(),
		ContextID: r.ContextID,
		Viewport:  r.Viewport,
	}, correlationID)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicCheckElement, body); err != nil {
		return fmt.Errorf("publish detection: %w", err)
	}
	return nil
}

// ReportScan snapshots every element matching selector on the page and
// reports each one for contextID. It returns the number reported.
func (s *Service) ReportScan(ctx context.Context, page Scanner, contextID, selector string) (int, error) {
	vp, err := page.Viewport(ctx)
	if err != nil {
		return 0, err
	}
	found, err := page.Scan(ctx, selector)
	if err != nil {
		return 0, err
	}

	reported := 0
	for _, d := range found {
		if err := s.Report(ctx, Report{Element: d, ContextID: contextID, Viewport: &vp}); err != nil {
			slog.WarnContext(ctx, "failed to report scanned element", "tag", d.TagName, "error", err)
			continue
		}
		reported++
	}
	slog.InfoContext(ctx, "page scan reported", "context_id", contextID, "found", len(found), "reported", reported)
	return reported, nil
}
