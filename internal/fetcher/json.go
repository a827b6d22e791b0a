package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// envelopeKeys are the top-level fields API-style feeds wrap their record
// arrays in. Findhelp uses "results"; most Socrata portals use "data".
var envelopeKeys = map[string]bool{
	"results":   true,
	"data":      true,
	"records":   true,
	"resources": true,
}

// DecodeJSONArray streams the elements of a JSON record feed to a channel.
// The input is either a bare array [{...},{...}] or an API envelope whose
// record array sits under one of envelopeKeys. Both channels are closed when
// processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}

		delim, ok := tok.(json.Delim)
		if !ok {
			errCh <- eris.Errorf("json: expected array or envelope object, got %v", tok)
			return
		}

		switch delim {
		case '[':
			if err := streamElements(ctx, decoder, outCh); err != nil {
				errCh <- err
			}
		case '{':
			if err := streamEnvelope(ctx, decoder, outCh); err != nil {
				errCh <- err
			}
		default:
			errCh <- eris.Errorf("json: expected array or envelope object, got %v", delim)
		}
	}()

	return outCh, errCh
}

// streamElements decodes array elements until the closing bracket.
func streamElements[T any](ctx context.Context, decoder *json.Decoder, outCh chan<- T) error {
	for decoder.More() {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "json: context cancelled")
		}

		var item T
		if err := decoder.Decode(&item); err != nil {
			return eris.Wrap(err, "json: decode element")
		}

		select {
		case outCh <- item:
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "json: context cancelled")
		}
	}

	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return eris.Wrap(err, "json: read closing token")
	}
	return nil
}

// streamEnvelope scans the keys of an envelope object for the record array
// and streams it. Other keys (pagination, counts, links) are skipped.
func streamEnvelope[T any](ctx context.Context, decoder *json.Decoder, outCh chan<- T) error {
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return eris.Wrap(err, "json: read envelope key")
		}
		key, ok := tok.(string)
		if !ok {
			return eris.Errorf("json: expected envelope key, got %v", tok)
		}

		if !envelopeKeys[key] {
			if err := skipValue(decoder); err != nil {
				return err
			}
			continue
		}

		tok, err = decoder.Token()
		if err != nil {
			return eris.Wrapf(err, "json: read %q value", key)
		}
		if delim, isDelim := tok.(json.Delim); !isDelim || delim != '[' {
			return eris.Errorf("json: envelope field %q is not an array", key)
		}
		return streamElements(ctx, decoder, outCh)
	}

	return eris.Errorf("json: no record array found in envelope")
}

// skipValue consumes one JSON value, tracking bracket depth for composites.
func skipValue(decoder *json.Decoder) error {
	tok, err := decoder.Token()
	if err != nil {
		return eris.Wrap(err, "json: skip envelope value")
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '[' && delim != '{') {
		return nil
	}

	depth := 1
	for depth > 0 {
		tok, err := decoder.Token()
		if err != nil {
			return eris.Wrap(err, "json: skip envelope value")
		}
		if d, isDelim := tok.(json.Delim); isDelim {
			switch d {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
	}
	return nil
}

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}
