package functional

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

const (
	// grace before the post-submit URL check; a navigating form needs a
	// moment to leave the page
	formGraceDelay      = time.Second
	formResponseTimeout = 10 * time.Second
	formPollInterval    = 250 * time.Millisecond
)

// formFieldFilterJS must match between collection and filling so field
// indexes line up.
const formFieldFilterJS = `(el) => ((el.tagName === 'INPUT' && !['hidden','submit','button','checkbox','radio','file','image','reset','range','color'].includes((el.type || '').toLowerCase())) || el.tagName === 'TEXTAREA')`

const collectFormsJS = `(() => {
	const isFillable = ` + formFieldFilterJS + `;
	return Array.from(document.forms).map((f, i) => ({
		index: i,
		action: f.getAttribute('action') || '',
		fields: Array.from(f.elements).filter(isFillable).map(el => ({
			type: (el.type || '').toLowerCase(),
			name: el.name || '',
			id: el.id || '',
			placeholder: el.placeholder || ''
		})),
		selects: Array.from(f.elements).filter(el => el.tagName === 'SELECT').length
	}));
})()`

const fillFormJSTemplate = `(() => {
	const isFillable = ` + formFieldFilterJS + `;
	const f = document.forms[%d];
	if (!f) return { filled: 0, error: 'form not found' };
	const values = %s;
	const fields = Array.from(f.elements).filter(isFillable);
	let filled = 0;
	fields.forEach((el, i) => {
		if (i >= values.length) return;
		el.value = values[i];
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		filled++;
	});
	Array.from(f.elements).forEach(el => {
		if (el.tagName === 'SELECT' && el.options.length > 1) {
			el.selectedIndex = 1;
			el.dispatchEvent(new Event('change', { bubbles: true }));
		}
	});
	try {
		if (typeof f.requestSubmit === 'function') { f.requestSubmit(); } else { f.submit(); }
	} catch (e) {
		return { filled: filled, error: String(e) };
	}
	return { filled: filled };
})()`

type formField struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
}

type formDescriptor struct {
	Index   int         `json:"index"`
	Action  string      `json:"action"`
	Fields  []formField `json:"fields"`
	Selects int         `json:"selects"`
}

type fillResult struct {
	Filled int    `json:"filled"`
	Error  string `json:"error"`
}

// fieldValue picks the fill value for one input. The checks run in
// priority order: email beats name beats message, anything else gets the
// generic value.
func fieldValue(f formField) string {
	key := strings.ToLower(f.Type + " " + f.Name + " " + f.ID + " " + f.Placeholder)
	switch {
	case f.Type == "email" || strings.Contains(key, "email"):
		return "test@example.com"
	case strings.Contains(key, "name"):
		return "Test User"
	case strings.Contains(key, "message") || strings.Contains(key, "comment"):
		return "Test message"
	default:
		return "test"
	}
}

// exerciseForms fills and submits every form carrying at least one
// fillable input. Network events drained while waiting for submit
// outcomes are appended to harEvents so the HAR keeps the submission
// traffic. Errors are context-level only.
func (s *Service) exerciseForms(ctx context.Context, page interfaces.PageSession, pageURL string, harEvents *[]models.NetworkEvent) ([]models.FormResult, error) {
	var forms []formDescriptor
	if err := page.Evaluate(ctx, collectFormsJS, &forms); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to collect forms")
		return nil, nil
	}

	var results []models.FormResult
	for _, form := range forms {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if len(form.Fields) == 0 {
			continue
		}

		result := models.FormResult{FormIndex: form.Index, Action: form.Action}

		values := make([]string, len(form.Fields))
		for i, field := range form.Fields {
			values[i] = fieldValue(field)
		}
		encoded, err := json.Marshal(values)
		if err != nil {
			result.Outcome = models.FormOutcomeError
			result.Message = err.Error()
			results = append(results, result)
			continue
		}

		var fill fillResult
		if err := page.Evaluate(ctx, fmt.Sprintf(fillFormJSTemplate, form.Index, encoded), &fill); err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			result.Outcome = models.FormOutcomeError
			result.Message = err.Error()
			results = append(results, result)
			continue
		}
		result.FieldsFilled = fill.Filled
		if fill.Error != "" {
			result.Outcome = models.FormOutcomeError
			result.Message = fill.Error
			results = append(results, result)
			continue
		}

		outcome, message, err := s.awaitSubmitOutcome(ctx, page, pageURL, harEvents)
		if err != nil {
			return results, err
		}
		result.Outcome = outcome
		result.Message = message
		results = append(results, result)

		// A navigating submit leaves the page; restore it before the
		// next form.
		if err := s.restorePage(ctx, page, pageURL); err != nil {
			return results, err
		}
	}

	return results, nil
}

// awaitSubmitOutcome watches for either a network response or a URL
// change after a form submit. A response below 500 or a changed URL is a
// success, a server error fails the form, silence within the timeout is
// recorded as submitted-no-response.
func (s *Service) awaitSubmitOutcome(ctx context.Context, page interfaces.PageSession, pageURL string, harEvents *[]models.NetworkEvent) (string, string, error) {
	deadline := time.Now().Add(s.responseTimeout)
	grace := time.Now().Add(s.graceDelay)

	for {
		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			return "", "", err
		}

		for _, event := range page.NetworkEvents() {
			*harEvents = append(*harEvents, event)
			if event.Status == 0 {
				continue
			}
			if event.Status < 500 {
				return models.FormOutcomeSuccess, fmt.Sprintf("response %d from %s", event.Status, event.URL), nil
			}
			return models.FormOutcomeError, fmt.Sprintf("server error %d from %s", event.Status, event.URL), nil
		}

		if time.Now().After(grace) {
			var current string
			if err := page.Evaluate(ctx, "window.location.href", &current); err == nil && current != "" && current != pageURL {
				return models.FormOutcomeSuccess, fmt.Sprintf("navigated to %s", current), nil
			}
		}

		if time.Now().After(deadline) {
			return models.FormOutcomeNoResponse, "", nil
		}
	}
}

// restorePage navigates back to the page when a submit or probe moved
// away, discarding the reload's events so they do not double up in the
// evidence.
func (s *Service) restorePage(ctx context.Context, page interfaces.PageSession, pageURL string) error {
	var current string
	if err := page.Evaluate(ctx, "window.location.href", &current); err == nil && current == pageURL {
		return nil
	}
	if _, err := page.Navigate(ctx, pageURL); err != nil {
		return err
	}
	page.NetworkEvents()
	page.ConsoleMessages()
	page.JSErrors()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
