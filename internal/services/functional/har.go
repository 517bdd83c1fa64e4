package functional

import (
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/paritas/internal/models"
)

// buildHAR assembles a HAR 1.2 document from the page navigation and the
// network events observed while the page was exercised. Timing detail
// beyond the page load time is not available from the event stream, so
// entry timings are zeroed.
func buildHAR(pageURL string, nav models.NavigationResult, events []models.NetworkEvent, startedAt time.Time) *models.HAR {
	har := models.NewMinimalHAR(pageURL, pageURL, nav.LoadTimeMs, startedAt)
	if len(events) == 0 {
		return har
	}

	entries := make([]models.HAREntry, 0, len(events))
	for _, event := range events {
		started := event.Timestamp
		if started == "" {
			started = startedAt.UTC().Format(time.RFC3339)
		}

		entry := models.HAREntry{
			Pageref:         "page_1",
			StartedDateTime: started,
			Request: models.HARRequest{
				Method:      event.Method,
				URL:         event.URL,
				HTTPVersion: "HTTP/1.1",
				Headers:     []models.HARNameValue{},
				QueryString: []models.HARNameValue{},
				Cookies:     []models.HARNameValue{},
				HeadersSize: -1,
				BodySize:    -1,
			},
			Response: models.HARResponse{
				Status:      event.Status,
				StatusText:  event.StatusText,
				HTTPVersion: "HTTP/1.1",
				Headers:     headerList(event.Headers),
				Cookies:     []models.HARNameValue{},
				Content: models.HARContent{
					MimeType: headerValue(event.Headers, "content-type"),
				},
				HeadersSize: -1,
				BodySize:    -1,
			},
		}
		if event.Failure != "" {
			entry.Response.StatusText = event.Failure
		}
		entries = append(entries, entry)
	}

	har.Log.Entries = entries
	return har
}

// headerValue does a case-insensitive header lookup; CDP casing varies
// by server
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// headerList converts a header map into the HAR name/value list in a
// stable order
func headerList(headers map[string]string) []models.HARNameValue {
	if len(headers) == 0 {
		return []models.HARNameValue{}
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.HARNameValue, 0, len(names))
	for _, name := range names {
		out = append(out, models.HARNameValue{Name: name, Value: headers[name]})
	}
	return out
}
