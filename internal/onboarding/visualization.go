package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"
)

const searchLimit = 8

// WikipediaConfig points the visualizer at the MediaWiki search API and the REST summary API.
type WikipediaConfig struct {
	APIURL    string        `envconfig:"WIKIPEDIA_API_URL" default:"https://en.wikipedia.org/w/api.php"`
	RESTURL   string        `envconfig:"WIKIPEDIA_REST_URL" default:"https://en.wikipedia.org/api/rest_v1"`
	UserAgent string        `envconfig:"WIKIPEDIA_USER_AGENT" default:"BookGPT/1.0 (onboarding visualization)"`
	Timeout   time.Duration `envconfig:"WIKIPEDIA_TIMEOUT" default:"10s"`
}

// curatedCharacters maps a title fragment to the article of its best known character.
var curatedCharacters = []struct {
	pattern   string
	character string
}{
	{"sherlock holmes", "Sherlock Holmes"},
	{"pride and prejudice", "Elizabeth Bennet"},
	{"great gatsby", "Jay Gatsby"},
	{"1984", "Winston Smith"},
	{"crime and punishment", "Rodion Raskolnikov"},
	{"to kill a mockingbird", "Atticus Finch"},
	{"lord of the rings", "Frodo Baggins"},
	{"the hobbit", "Bilbo Baggins"},
	{"dune", "Paul Atreides"},
}

// WikipediaVisualizer finds a character thumbnail for a book title.
type WikipediaVisualizer struct {
	config WikipediaConfig
	client *http.Client
}

func NewWikipediaVisualizer(config WikipediaConfig) *WikipediaVisualizer {
	return &WikipediaVisualizer{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type summaryResponse struct {
	Title     string `json:"title"`
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
}

// Generate tries the curated character first, then the articles returned by
// a few search queries, and returns the first summary that has a thumbnail.
func (w *WikipediaVisualizer) Generate(ctx context.Context, bookTitle string) (model.Visualization, error) {
	book := strings.TrimSpace(bookTitle)
	if book == "" {
		return model.Visualization{}, errx.ErrNoCharacterFound
	}

	if character, ok := curatedCharacter(book); ok {
		v, found, err := w.summary(ctx, character)
		if err != nil {
			return model.Visualization{}, err
		}
		if found {
			return v, nil
		}
	}

	queries := []string{
		book + " main character",
		book + " character",
		book + " protagonist",
	}
	for _, q := range queries {
		titles, err := w.search(ctx, q)
		if err != nil {
			return model.Visualization{}, err
		}
		for _, title := range titles {
			v, found, err := w.summary(ctx, title)
			if err != nil {
				return model.Visualization{}, err
			}
			if found {
				return v, nil
			}
		}
	}

	logx.Debug().Str("book", book).Msg("no character image found")
	return model.Visualization{}, errx.ErrNoImageFound
}

func curatedCharacter(book string) (string, bool) {
	key := strings.ToLower(book)
	for _, c := range curatedCharacters {
		if strings.Contains(key, c.pattern) {
			return c.character, true
		}
	}
	return "", false
}

func (w *WikipediaVisualizer) search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("format", "json")
	params.Set("utf8", "1")
	params.Set("srlimit", strconv.Itoa(searchLimit))
	params.Set("srsearch", query)

	var decoded searchResponse
	ok, err := w.getJSON(ctx, w.config.APIURL+"?"+params.Encode(), &decoded)
	if err != nil || !ok {
		return nil, err
	}

	titles := make([]string, 0, len(decoded.Query.Search))
	for _, item := range decoded.Query.Search {
		titles = append(titles, item.Title)
	}
	return titles, nil
}

func (w *WikipediaVisualizer) summary(ctx context.Context, article string) (model.Visualization, bool, error) {
	endpoint := strings.TrimRight(w.config.RESTURL, "/") + "/page/summary/" + url.PathEscape(article)

	var decoded summaryResponse
	ok, err := w.getJSON(ctx, endpoint, &decoded)
	if err != nil || !ok {
		return model.Visualization{}, false, err
	}
	if decoded.Thumbnail == nil || decoded.Thumbnail.Source == "" {
		return model.Visualization{}, false, nil
	}
	if _, err := url.ParseRequestURI(decoded.Thumbnail.Source); err != nil {
		return model.Visualization{}, false, nil
	}
	return model.Visualization{CharacterName: decoded.Title, ImageURL: decoded.Thumbnail.Source}, true, nil
}

// getJSON reports false without error for non-2xx responses.
func (w *WikipediaVisualizer) getJSON(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build wikipedia request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", w.config.UserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: wikipedia: %v", errx.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: wikipedia response: %v", errx.ErrDecode, err)
	}
	return true, nil
}
