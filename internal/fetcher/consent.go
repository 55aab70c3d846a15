package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// consentMarkers identify the terms-of-access interstitial the exchange
// serves in place of a document the first time a session requests one.
var consentMarkers = [][]byte{
	[]byte("Access to this site"),
	[]byte("terms of use and disclaimer"),
}

// isConsentPage reports whether body is the consent interstitial rather
// than the requested document. PDF payloads never trip the markers.
func isConsentPage(body []byte) bool {
	if bytes.HasPrefix(body, []byte("%PDF")) {
		return false
	}
	for _, m := range consentMarkers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}

// acceptConsent parses the interstitial's agreement form, re-submits it with
// every hidden field it carries, and returns the document body. The form is
// submitted exactly once, through the raw request path so the consent check
// in fetch cannot recurse; a second interstitial in the response is an error
// rather than a loop.
func (f *HTTPFetcher) acceptConsent(ctx context.Context, pageURL string, body []byte) ([]byte, error) {
	action, fields, err := parseConsentForm(pageURL, body)
	if err != nil {
		return nil, err
	}

	encoded := fields.Encode()
	doc, err := f.fetchRaw(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if isConsentPage(doc) {
		return nil, eris.Errorf("consent page returned again after accepting at %s", action)
	}
	return doc, nil
}

func parseConsentForm(pageURL string, body []byte) (string, url.Values, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", nil, eris.Wrap(err, "parse consent page")
	}

	form := doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(`input[name="pdfURL"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		form = doc.Find("form").First()
	}
	if form.Length() == 0 {
		return "", nil, eris.Errorf("no agreement form on consent page at %s", pageURL)
	}

	fields := url.Values{}
	form.Find("input").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		typ, _ := s.Attr("type")
		if typ == "submit" || typ == "button" {
			return
		}
		value, _ := s.Attr("value")
		fields.Set(name, value)
	})

	action, _ := form.Attr("action")
	resolved, err := resolveURL(pageURL, action)
	if err != nil {
		return "", nil, err
	}
	return resolved, fields, nil
}

// resolveURL resolves ref against base, returning base when ref is empty.
func resolveURL(base, ref string) (string, error) {
	if ref == "" {
		return base, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "parse base url %s", base)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", eris.Wrapf(err, "parse url %s", ref)
	}
	return b.ResolveReference(r).String(), nil
}
