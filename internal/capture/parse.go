package capture

import (
	"sort"

	"github.com/PentesterFlow/AuthScope/internal/browser"
)

// ParseLog converts the raw event stream into request records and a
// response lookup keyed by request ID. Requests are returned in timestamp
// order. Events with no URL are dropped; a response arriving before its
// request is kept, correlation is by ID only.
func ParseLog(events []browser.RawEvent) ([]CapturedRequest, map[string]CapturedResponse) {
	requests := make([]CapturedRequest, 0, len(events))
	responses := make(map[string]CapturedResponse, len(events))

	for _, ev := range events {
		if ev.URL == "" {
			continue
		}

		switch ev.Kind {
		case browser.EventRequest:
			requests = append(requests, CapturedRequest{
				ID:        ev.ID,
				URL:       ev.URL,
				Method:    ev.Method,
				Headers:   ev.Headers,
				Body:      ev.Body,
				Timestamp: ev.Timestamp,
			})
		case browser.EventResponse:
			// First response per ID wins; redirects re-use the ID.
			if _, ok := responses[ev.ID]; ok {
				continue
			}
			sample := ev.Body
			if len(sample) > bodySampleLimit {
				sample = sample[:bodySampleLimit]
			}
			responses[ev.ID] = CapturedResponse{
				RequestID:  ev.ID,
				Status:     ev.Status,
				Headers:    ev.Headers,
				BodySample: sample,
			}
		}
	}

	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Timestamp.Before(requests[j].Timestamp)
	})

	return requests, responses
}
