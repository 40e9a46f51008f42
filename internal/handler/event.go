package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"rewrite-proxy-go/internal/model"
	"rewrite-proxy-go/internal/service"
)

// Event is the function-invocation request envelope.
type Event struct {
	HTTPMethod                      string              `json:"httpMethod"`
	Path                            string              `json:"path"`
	Headers                         map[string]string   `json:"headers"`
	MultiValueHeaders               map[string][]string `json:"multiValueHeaders"`
	QueryStringParameters           map[string]string   `json:"queryStringParameters"`
	MultiValueQueryStringParameters map[string][]string `json:"multiValueQueryStringParameters"`
	Body                            string              `json:"body"`
	IsBase64Encoded                 bool                `json:"isBase64Encoded"`
}

// Result is the function-invocation response envelope.
type Result struct {
	StatusCode        int                 `json:"statusCode"`
	Headers           map[string]string   `json:"headers"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders,omitempty"`
	Body              string              `json:"body"`
	IsBase64Encoded   bool                `json:"isBase64Encoded"`
}

// Request converts the event into a pipeline request. Multi-valued headers
// and query parameters replace their single-valued counterparts.
func (ev *Event) Request() *model.Request {
	method := ev.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}
	path := ev.Path
	if path == "" {
		path = "/"
	}

	header := make(http.Header, len(ev.Headers))
	for k, v := range ev.Headers {
		header.Set(k, v)
	}
	for k, vals := range ev.MultiValueHeaders {
		header.Del(k)
		for _, v := range vals {
			header.Add(k, v)
		}
	}

	query := make(url.Values, len(ev.QueryStringParameters))
	for k, v := range ev.QueryStringParameters {
		query.Set(k, v)
	}
	for k, vals := range ev.MultiValueQueryStringParameters {
		query[k] = append([]string(nil), vals...)
	}

	return &model.Request{
		Method:          method,
		Path:            path,
		Query:           query,
		Header:          header,
		Body:            []byte(ev.Body),
		IsBase64Encoded: ev.IsBase64Encoded,
	}
}

func resultFrom(resp *model.Response) *Result {
	return &Result{
		StatusCode:        resp.StatusCode,
		Headers:           resp.Headers,
		MultiValueHeaders: resp.MultiValueHeaders,
		Body:              resp.Body,
		IsBase64Encoded:   resp.IsBase64Encoded,
	}
}

// InvokeHandler runs function-invocation events through the pipeline.
type InvokeHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewInvokeHandler creates an InvokeHandler.
func NewInvokeHandler(svc *service.ProxyService, logger *slog.Logger) *InvokeHandler {
	return &InvokeHandler{
		service: svc,
		logger:  logger.With("component", "invoke_handler"),
	}
}

// Invoke decodes an Event from the request body and responds with the
// pipeline Result as JSON. Pipeline failures still answer 200 with a Result
// whose statusCode is 500.
func (h *InvokeHandler) Invoke(c echo.Context) error {
	var ev Event
	if err := c.Echo().JSONSerializer.Deserialize(c, &ev); err != nil {
		if errors.Is(err, io.EOF) {
			return echo.NewHTTPError(http.StatusBadRequest, "empty event")
		}
		h.logger.Warn("decode event", "err", err)
		return err
	}

	resp := h.service.Handle(c.Request().Context(), ev.Request())
	return c.JSON(http.StatusOK, resultFrom(resp))
}
