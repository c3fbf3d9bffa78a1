// Package importer はポッドキャストのフィードから番組を取り込む。
// フィードの検出、SSRF対策済みクライアントでの取得、gofeedによる解析、
// 番組一覧への追記と定期実行のスケジューラを含む。
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/radioedit/internal/model"
	"github.com/hitoshi/radioedit/internal/security"
)

const userAgent = "RadioEdit/1.0 Feed Importer"

// FeedType はフィードの種類（RSS/Atom）を表す。
type FeedType string

const (
	FeedTypeRSS  FeedType = "rss"
	FeedTypeAtom FeedType = "atom"
)

// FeedCandidate はHTMLのlink要素から見つかったフィード候補。
type FeedCandidate struct {
	URL      string
	FeedType FeedType
	Title    string
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// FetchedDocument は1回のGETで取得した内容。
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// FeedDetector は入力URLからフィード本体を取り出す。
// 入力がHTMLページの場合はheadのlink要素からフィードを探して取得し直す。
type FeedDetector struct {
	ssrfGuard   SSRFValidator
	timeout     time.Duration
	maxBodySize int64
	// onResponse はHTTP応答ごとに呼ばれる（メトリクス記録用）。nil可。
	onResponse func(status int, elapsed time.Duration)
}

// NewFeedDetector はFeedDetectorを生成する。
func NewFeedDetector(ssrfGuard SSRFValidator, timeout time.Duration, maxBodySize int64) *FeedDetector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBodySize <= 0 {
		maxBodySize = 5 * 1024 * 1024
	}
	return &FeedDetector{
		ssrfGuard:   ssrfGuard,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// ボディを見て判定する汎用XMLのContent-Type。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// IsDirectFeed はContent-Typeとボディの先頭からRSS/Atomフィードかを判定する。
func (d *FeedDetector) IsDirectFeed(contentType string, body []byte) bool {
	mediaType := mediaTypeOf(contentType)
	for _, ct := range feedContentTypes {
		if mediaType == ct {
			return true
		}
	}

	isXML := false
	for _, ct := range xmlContentTypes {
		if mediaType == ct {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}
	return looksLikeFeed(body)
}

// looksLikeFeed は先頭4KBにRSS/RDF/Atomのルート要素があるかを調べる。
func looksLikeFeed(body []byte) bool {
	prefix := strings.ToLower(string(body[:min(len(body), 4096)]))
	switch {
	case strings.Contains(prefix, "<rss"), strings.Contains(prefix, "<rdf:rdf"):
		return true
	case strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom"):
		return true
	}
	return false
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// ParseFeedLinksFromHTML はheadのlink rel="alternate"からフィード候補を抽出する。
// 相対URLはbaseURLを基準に解決する。
func (d *FeedDetector) ParseFeedLinksFromHTML(htmlBody []byte, baseURL string) []FeedCandidate {
	var candidates []FeedCandidate

	base, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return candidates
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}
			if c, ok := linkCandidate(tokenizer, base); ok {
				candidates = append(candidates, c)
			}

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return candidates
			}
		}
	}
}

func linkCandidate(tokenizer *html.Tokenizer, base *url.URL) (FeedCandidate, bool) {
	var rel, linkType, href, title string
	for {
		key, val, more := tokenizer.TagAttr()
		switch strings.ToLower(string(key)) {
		case "rel":
			rel = strings.ToLower(string(val))
		case "type":
			linkType = strings.ToLower(string(val))
		case "href":
			href = string(val)
		case "title":
			title = string(val)
		}
		if !more {
			break
		}
	}
	if rel != "alternate" || href == "" {
		return FeedCandidate{}, false
	}

	var feedType FeedType
	switch linkType {
	case "application/rss+xml":
		feedType = FeedTypeRSS
	case "application/atom+xml":
		feedType = FeedTypeAtom
	default:
		return FeedCandidate{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return FeedCandidate{}, false
	}
	return FeedCandidate{URL: base.ResolveReference(ref).String(), FeedType: feedType, Title: title}, true
}

// SelectBestFeed は候補から1つを選ぶ。
// 優先順位: 同一ホスト > Atom > RSS > 先頭
func (d *FeedDetector) SelectBestFeed(candidates []FeedCandidate, inputURL string) *FeedCandidate {
	if len(candidates) == 0 {
		return nil
	}

	inputHost := hostOf(inputURL)
	bestIdx, bestScore := 0, -1
	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == inputHost {
			score += 100
		}
		if c.FeedType == FeedTypeAtom {
			score += 10
		}
		// 同点は先に現れた候補を残す
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return &candidates[bestIdx]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Detect は入力URLを取得し、フィード本体とそのURLを返す。
//  1. SSRF検証
//  2. 入力URLを取得し、フィードであればそのまま返す
//  3. HTMLであればフィードリンクを選び、そのURLを取得して返す
func (d *FeedDetector) Detect(ctx context.Context, inputURL string) (*FetchedDocument, error) {
	if strings.TrimSpace(inputURL) == "" {
		return nil, model.NewInvalidURLError("URLが入力されていません")
	}

	doc, err := d.fetch(ctx, inputURL)
	if err != nil {
		return nil, err
	}
	if d.IsDirectFeed(doc.ContentType, doc.Body) {
		return doc, nil
	}
	if !strings.Contains(mediaTypeOf(doc.ContentType), "html") {
		return nil, model.NewFeedNotDetectedError(inputURL)
	}

	best := d.SelectBestFeed(d.ParseFeedLinksFromHTML(doc.Body, doc.URL), inputURL)
	if best == nil {
		return nil, model.NewFeedNotDetectedError(inputURL)
	}
	return d.fetch(ctx, best.URL)
}

// fetch はSSRF検証の後にGETし、200以外はFETCH_FAILEDとする。
func (d *FeedDetector) fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	if err := d.ssrfGuard.ValidateURL(rawURL); err != nil {
		if errors.Is(err, security.ErrBlockedDestination) {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	start := time.Now()
	resp, err := d.ssrfGuard.NewSafeClient(d.timeout, d.maxBodySize).Do(req)
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()
	if d.onResponse != nil {
		d.onResponse(resp.StatusCode, time.Since(start))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
		apiErr.Err = &StatusError{StatusCode: resp.StatusCode}
		return nil, apiErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodySize))
	if err != nil {
		return nil, model.NewFetchFailedError(fmt.Sprintf("レスポンスの読み取りに失敗: %v", err))
	}

	return &FetchedDocument{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
