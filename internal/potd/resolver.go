package potd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DefaultEndpoint serves the Bing picture of the day metadata.
const DefaultEndpoint = "https://bing.biturl.top"

const urlField = "url"

// Getter issues GET requests, returning a *RequestError on failure.
type Getter interface {
	Get(ctx context.Context, operation, url string) (*http.Response, error)
}

// Resolver finds the URL of today's picture from a JSON metadata endpoint.
type Resolver struct {
	endpoint string
	client   Getter
}

func NewResolver(endpoint string, client Getter) *Resolver {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Resolver{endpoint: endpoint, client: client}
}

func (r *Resolver) Endpoint() string {
	return r.endpoint
}

// ResolvePictureURL fetches the metadata document and returns its "url" field verbatim.
func (r *Resolver) ResolvePictureURL(ctx context.Context) (string, error) {
	resp, err := r.client.Get(ctx, "resolve_url", r.endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)

	var body map[string]string
	if err := dec.Decode(&body); err != nil {
		return "", &DecodeError{Endpoint: r.endpoint, Err: err}
	}

	// null decodes into a nil map without error
	if body == nil {
		return "", &DecodeError{Endpoint: r.endpoint, Err: errors.New("metadata is not a JSON object")}
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", &DecodeError{Endpoint: r.endpoint, Err: errors.New("unexpected data after the JSON object")}
	}

	url, ok := body[urlField]
	if !ok {
		return "", &MissingFieldError{Endpoint: r.endpoint, Field: urlField}
	}

	return url, nil
}
