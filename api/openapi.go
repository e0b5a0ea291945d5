package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"

	"bidvault/auction"
)

//go:embed openapi.yaml
var openapiDocument []byte

// LoadOpenAPI 解析內嵌的 API 文件並檢查其格式
func LoadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	const op = "LoadOpenAPI"
	doc, err := openapi3.NewLoader().LoadFromData(openapiDocument)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load document, err=%w", op, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("[%s] Fail to validate document, err=%w", op, err)
	}
	return doc, nil
}

type requestValidator struct {
	router routers.Router
}

func newRequestValidator(doc *openapi3.T) (*requestValidator, error) {
	const op = "newRequestValidator"
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to build router, err=%w", op, err)
	}
	return &requestValidator{router: router}, nil
}

// Middleware 依文件檢查路徑、查詢參數與 JSON 內容；文件外的路由直接放行
func (v *requestValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				// 身分由 RequireCaller 驗證
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				ExcludeRequestBody: !acceptsJSON(route.Operation),
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
				Message: validationMessage(err),
				Kind:    auction.KindInvalidParameters.String(),
			})
			return
		}
		c.Next()
	}
}

// 圖片上傳的內容由 handler 自行嗅探
func acceptsJSON(operation *openapi3.Operation) bool {
	body := operation.RequestBody
	return body != nil && body.Value != nil && body.Value.Content.Get("application/json") != nil
}

func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return err.Error()
	}
	subject := "request body"
	if reqErr.Parameter != nil {
		subject = reqErr.Parameter.Name
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		if pointer := schemaErr.JSONPointer(); len(pointer) > 0 {
			subject = strings.Join(pointer, ".")
		}
		return subject + ": " + schemaErr.Reason
	}
	if reqErr.Err != nil {
		return subject + ": " + reqErr.Err.Error()
	}
	return subject + ": " + reqErr.Reason
}
