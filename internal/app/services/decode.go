package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

// RawBodyKey holds the full body text when no structured decoding applies.
const RawBodyKey = "raw_body"

// ErrMalformedPayload indicates an unreadable or undecodable request body.
var ErrMalformedPayload = errors.New("malformed payload")

// DecodePayload turns a request body and its declared content type into a
// flat or shallow-nested key/value map. Unrecognized content is attempted
// as url-encoded form data and otherwise kept whole under RawBodyKey so
// nothing is silently dropped.
func DecodePayload(body []byte, contentType string) (map[string]any, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == "application/json":
		return decodeJSON(body)
	case mediaType == "application/x-www-form-urlencoded":
		return decodeForm(body)
	case mediaType == "multipart/form-data":
		return decodeMultipart(body, params["boundary"])
	default:
		return decodeText(body)
	}
}

func decodeJSON(body []byte) (map[string]any, error) {
	payload := map[string]any{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, ErrMalformedPayload
	}
	return payload, nil
}

func decodeForm(body []byte) (map[string]any, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, ErrMalformedPayload
	}
	return formToMap(values), nil
}

func decodeMultipart(body []byte, boundary string) (map[string]any, error) {
	if boundary == "" {
		return nil, ErrMalformedPayload
	}
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	payload := map[string]any{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ErrMalformedPayload
		}
		name := part.FormName()
		if name == "" {
			continue
		}
		value, err := io.ReadAll(part)
		if err != nil {
			return nil, ErrMalformedPayload
		}
		payload[name] = string(value)
	}
	return payload, nil
}

// decodeText handles unspecified content types: providers occasionally post
// url-encoded bodies with a text/plain header, so that is attempted first.
func decodeText(body []byte) (map[string]any, error) {
	text := string(body)
	if looksURLEncoded(text) {
		if values, err := url.ParseQuery(text); err == nil {
			return formToMap(values), nil
		}
	}
	return map[string]any{RawBodyKey: text}, nil
}

func looksURLEncoded(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || !strings.Contains(text, "=") {
		return false
	}
	return !strings.ContainsAny(text, "{}\n")
}

func formToMap(values url.Values) map[string]any {
	payload := make(map[string]any, len(values))
	for key, list := range values {
		if len(list) == 0 {
			payload[key] = ""
			continue
		}
		payload[key] = list[0]
	}
	return payload
}
