package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/logger"
)

// ErrUnavailable 실행 백엔드 일시 장애. 파이프라인이 재시도한다.
var ErrUnavailable = errors.New("executor unavailable")

// 실행 백엔드가 돌려주는 status 값
const (
	StatusAccepted            = "accepted"
	StatusWrongAnswer         = "wrong_answer"
	StatusTimeLimitExceeded   = "time_limit_exceeded"
	StatusMemoryLimitExceeded = "memory_limit_exceeded"
	StatusRuntimeError        = "runtime_error"
	StatusCompileError        = "compile_error"
	StatusInternalError       = "internal_error"
)

// Client 외부 채점 백엔드 HTTP 클라이언트.
// 느리거나 실패할 수 있는 원격 호출로 취급한다.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type ExecuteRequest struct {
	Code          string            `json:"code"`
	Language      string            `json:"language"`
	TestCases     []models.TestCase `json:"testCases"`
	TimeLimitSec  int               `json:"timeLimitSec"`
	MemoryLimitKB int               `json:"memoryLimitKb"`
}

type ExecuteResponse struct {
	Status          string `json:"status"`
	TestsPassed     int    `json:"testsPassed"`
	TestsTotal      int    `json:"testsTotal"`
	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
	CompileOutput   string `json:"compileOutput,omitempty"`
	ExecutionTimeMs int    `json:"executionTimeMs"`
	MemoryUsedKB    int    `json:"memoryUsedKb"`
}

// Execute 코드+테스트케이스 채점 요청.
// 전송 실패와 5xx는 ErrUnavailable로 감싸 재시도 가능함을 알린다.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: executor returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("executor rejected request: status %d", resp.StatusCode)
	}

	var result ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode executor response: %w", err)
	}

	return &result, nil
}

// IsTransient 재시도해도 되는 실패인지
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// HealthCheck 실행 백엔드 상태 확인
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executor health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("executor is not healthy: status %d", resp.StatusCode)
	}

	logger.Info("Executor health check passed", "baseURL", c.baseURL)

	return nil
}
