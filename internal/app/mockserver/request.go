package mockserver

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
	log "github.com/sirupsen/logrus"
)

const (
	mediaTypeJSON = contract.MediaTypeJSON
	mediaTypeText = "text/plain"
)

// requestDocument is the JSON view of an incoming request that constraints
// are evaluated against: method, path, query, headers and body.
type requestDocument map[string]interface{}

var supportedMediaTypes = map[string]func([]byte) interface{}{
	mediaTypeJSON: parseJSONBody,
	mediaTypeText: parsePlainTextBody,
}

func parseRequest(req *http.Request, data []byte) requestDocument {
	mediaType, err := parseMediaTypeHeader(req.Header)
	if err != nil {
		log.Warnf("failed to parse Content-Type header, treating body as text. %s", err.Error())
		mediaType = mediaTypeText
	}

	parseBody, ok := supportedMediaTypes[mediaType]
	if !ok {
		if strings.HasSuffix(mediaType, "+json") {
			parseBody = parseJSONBody
		} else {
			parseBody = parsePlainTextBody
		}
	}

	headers := make(map[string]interface{}, len(req.Header))
	for name, values := range req.Header {
		headers[name] = strings.Join(values, ", ")
	}

	return requestDocument{
		"method":  req.Method,
		"path":    req.URL.Path,
		"query":   parseQueryValues(req.URL),
		"headers": headers,
		"body":    parseBody(data),
	}
}

func parseJSONBody(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	var body interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		log.Warnf("request body is not valid JSON, treating it as text. %s", err.Error())
		return string(data)
	}
	return body
}

func parsePlainTextBody(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func parseMediaTypeHeader(header http.Header) (string, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return mediaTypeJSON, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", err
	}
	return mediaType, nil
}

func parseQueryValues(url *url.URL) map[string]interface{} {
	queryValues := make(map[string]interface{})
	for q, v := range url.Query() {
		if len(v) > 0 {
			escapeValue(queryValues, q, v[0])
		}
	}
	return queryValues
}

func (r requestDocument) encodeValues(val string) string {
	query, _ := r["query"].(map[string]interface{})
	return encodeMapValues(query, val)
}

func encodeMapValues(m map[string]interface{}, val string) string {
	result := val
	for k, v := range m {
		result = strings.ReplaceAll(result, "["+k+"]", "[\""+k+"\"]")
		switch val := v.(type) {
		case map[string]interface{}:
			result = encodeMapValues(val, result)
		}
	}
	return result
}

// escapeValue nests bracketed query keys, so a[b]=c becomes {"a":{"b":"c"}}.
func escapeValue(values map[string]interface{}, query, val string) {
	open := strings.Index(query, "[")
	if open > -1 {
		key := query[:open]
		rest := query[open+1:]
		closing := strings.Index(rest, "]")
		if closing < 0 {
			values[query] = val
			return
		}

		subKey := rest[:closing]
		next := rest[closing+1:]

		existingValue := values[key]
		valueMap, ok := existingValue.(map[string]interface{})
		if !ok {
			valueMap = make(map[string]interface{})
			values[key] = valueMap
		}
		escapeValue(valueMap, subKey+next, val)
		return
	}
	values[query] = val
}
