package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"group_chat_service/internal/chat/domain"
	"group_chat_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 10 * time.Second

// API chat_service REST client
type API struct {
	baseURL string
	timeout time.Duration
}

// NewAPI create API, baseURL like http://localhost:8082
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultRequestTimeout,
	}
}

type sendBody struct {
	Text      string `json:"text"`
	ClientRef string `json:"client_ref,omitempty"`
}

type editBody struct {
	Text string `json:"text"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (a *API) messagesURL(groupID int64, messageID string) string {
	u := a.baseURL + "/groups/" + strconv.FormatInt(groupID, 10) + "/messages"
	if messageID != "" {
		u += "/" + url.PathEscape(messageID)
	}
	return u
}

// History 取得群組最近訊息 (升冪)
func (a *API) History(ctx context.Context, credential string, groupID int64) ([]WireMessage, error) {
	var out []WireMessage
	if err := a.do(ctx, fiber.Get(a.messagesURL(groupID, "")), credential, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send 新增訊息, clientRef 會原樣出現在廣播裡
func (a *API) Send(ctx context.Context, credential string, groupID int64, text, clientRef string) (*WireMessage, error) {
	var out WireMessage
	agent := fiber.Post(a.messagesURL(groupID, "")).JSON(sendBody{Text: text, ClientRef: clientRef})
	if err := a.do(ctx, agent, credential, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Edit 修改訊息
func (a *API) Edit(ctx context.Context, credential string, groupID int64, messageID, text string) (*WireMessage, error) {
	var out WireMessage
	agent := fiber.Patch(a.messagesURL(groupID, messageID)).JSON(editBody{Text: text})
	if err := a.do(ctx, agent, credential, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete 刪除訊息
func (a *API) Delete(ctx context.Context, credential string, groupID int64, messageID string) error {
	return a.do(ctx, fiber.Delete(a.messagesURL(groupID, messageID)), credential, nil)
}

type agentResult struct {
	code int
	body []byte
	errs []error
}

func (a *API) do(ctx context.Context, agent *fiber.Agent, credential string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
	}

	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	agent.Set(fiber.HeaderAuthorization, "Bearer "+credential).Timeout(timeout)

	// Agent 不看 ctx, 在背景送出; ctx 取消時直接返回, 請求由 agent 自己的 timeout 收尾
	done := make(chan agentResult, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- agentResult{code: code, body: body, errs: errs}
	}()

	var res agentResult
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrTransportFailure, ctx.Err())
	case res = <-done:
	}

	if len(res.errs) > 0 {
		logger.Log.Debug("chat api request failed", zap.Errors("errs", res.errs))
		return fmt.Errorf("%w: %v", domain.ErrTransportFailure, errors.Join(res.errs...))
	}

	if res.code >= fiber.StatusBadRequest {
		return statusError(res.code, res.body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrTransportFailure, err)
	}
	return nil
}

// statusError map HTTP status to the client error taxonomy
func statusError(code int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if eb.Error == "" {
		eb.Error = fiber.NewError(code).Message
	}

	var sentinel error
	switch {
	case code == fiber.StatusBadRequest:
		sentinel = domain.ErrInvalidArgument
	case code == fiber.StatusUnauthorized || code == fiber.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case code == fiber.StatusNotFound:
		sentinel = domain.ErrNotFound
	default:
		sentinel = domain.ErrPersistenceFailure
	}
	return fmt.Errorf("%w: %s (%d)", sentinel, eb.Error, code)
}
