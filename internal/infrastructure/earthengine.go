package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"rivwidthcloud/internal/domain"
	"rivwidthcloud/pkg/geo"
)

var EarthEngineScopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// TokenSourceFunc creates a fresh token source for a session.
type TokenSourceFunc func(ctx context.Context) (oauth2.TokenSource, error)

// DefaultCredentials uses Application Default Credentials.
func DefaultCredentials(ctx context.Context) (oauth2.TokenSource, error) {
	creds, err := google.FindDefaultCredentials(ctx, EarthEngineScopes...)
	if err != nil {
		return nil, fmt.Errorf("find default credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// Session is the credential handle shared read-only by all workers. Refresh is the
// only mutation and is serialized by the caller.
type Session struct {
	logger    *zap.Logger
	newSource TokenSourceFunc

	mu     sync.RWMutex
	source oauth2.TokenSource
}

func NewSession(logger *zap.Logger, newSource TokenSourceFunc) *Session {
	return &Session{logger: logger, newSource: newSource}
}

// Refresh implements domain.SessionRefresher
func (s *Session) Refresh(ctx context.Context) error {
	src, err := s.newSource(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.source = oauth2.ReuseTokenSource(nil, src)
	s.mu.Unlock()

	s.logger.Info("Remote session initialized")
	return nil
}

// Token returns a valid token or an error wrapping domain.ErrSessionExpired.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	src := s.source
	s.mu.RUnlock()

	if src == nil {
		return nil, fmt.Errorf("%w: session not initialized", domain.ErrSessionExpired)
	}
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionExpired, err)
	}
	return tok, nil
}

// EarthEngineClient submits table exports to the Earth Engine REST API.
type EarthEngineClient struct {
	logger    *zap.Logger
	http      *http.Client
	session   oauth2.TokenSource
	cfg       domain.EarthEngineConfig
	export    domain.ExportConfig
	limiter   *rate.Limiter
	namespace uuid.UUID
	out       io.Writer

	newBackOff func() backoff.BackOff
}

// NewEarthEngineClient creates a client authorized by session. The token is taken from
// session on every request, so a renewal applies to the next call. Request ids are
// derived from runID so that a retried task reuses its id.
func NewEarthEngineClient(logger *zap.Logger, session oauth2.TokenSource, cfg domain.EarthEngineConfig, export domain.ExportConfig, runID uuid.UUID, out io.Writer) *EarthEngineClient {
	client := &http.Client{
		Transport: &oauth2.Transport{Source: session, Base: http.DefaultTransport},
	}

	return &EarthEngineClient{
		logger:    logger,
		http:      client,
		session:   session,
		cfg:       cfg,
		export:    export,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1)),
		namespace: runID,
		out:       out,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Submit implements domain.Submitter
func (c *EarthEngineClient) Submit(ctx context.Context, task domain.TaskSpec) (domain.Receipt, error) {
	if task.Params == nil {
		return domain.Receipt{}, &domain.ValidationError{Field: "parameters", Reason: "are missing"}
	}

	requestID := RequestID(c.namespace, task)
	body, err := json.Marshal(c.exportRequest(task, requestID))
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("marshal export request: %w", err)
	}

	op, err := backoff.Retry(ctx, func() (operation, error) {
		return c.post(ctx, body)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(max(c.cfg.MaxTries, 1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Export request failed, retrying",
				zap.String("id", task.Identifier),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return domain.Receipt{}, err
	}

	prefix := task.ExportPrefix()
	printConfirmation(c.out, prefix, c.destination(task.Params), task.Params.OutputFormat)

	return domain.Receipt{
		OperationName: op.Name,
		Description:   prefix,
		RequestID:     requestID,
		AcceptedAt:    time.Now(),
	}, nil
}

// post performs a single export call and classifies its error for backoff.Retry.
func (c *EarthEngineClient) post(ctx context.Context, body []byte) (operation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return operation{}, backoff.Permanent(err)
	}
	if _, err := c.session.Token(); err != nil {
		return operation{}, backoff.Permanent(err)
	}

	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.exportURL(), bytes.NewReader(body))
	if err != nil {
		return operation{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return operation{}, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, domain.ErrSessionExpired) {
			return operation{}, backoff.Permanent(err)
		}
		return operation{}, &domain.RemoteSubmissionError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return operation{}, classify(err)
	}

	var op operation
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&op); err != nil {
		return operation{}, backoff.Permanent(&domain.RemoteSubmissionError{StatusCode: resp.StatusCode, Message: "decode operation: " + err.Error()})
	}
	return op, nil
}

// classify maps an API error to a session expiry, a retryable failure or a permanent one.
func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return backoff.Permanent(&domain.RemoteSubmissionError{Message: err.Error()})
	}

	switch {
	case credentialsRejected(apiErr):
		return backoff.Permanent(fmt.Errorf("%w: status %d: %s", domain.ErrSessionExpired, apiErr.Code, remoteMessage(apiErr)))
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
		return &domain.RemoteSubmissionError{StatusCode: apiErr.Code, Message: remoteMessage(apiErr)}
	default:
		return backoff.Permanent(&domain.RemoteSubmissionError{StatusCode: apiErr.Code, Message: remoteMessage(apiErr)})
	}
}

// credentialsRejected reports whether the service refused the token itself. A 403 is
// usually a permission problem (unshared folder, unregistered project) that a new token
// does not fix.
func credentialsRejected(apiErr *googleapi.Error) bool {
	switch apiErr.Code {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
	default:
		return false
	}

	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "authError", "invalidCredentials", "expired":
			return true
		}
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "invalid authentication credentials") ||
		strings.Contains(msg, "access token")
}

func (c *EarthEngineClient) exportURL() string {
	return strings.TrimRight(c.cfg.Endpoint, "/") + "/v1/" + c.parent() + "/table:export"
}

func (c *EarthEngineClient) parent() string {
	project := c.cfg.Project
	if project == "" {
		project = "earthengine-legacy"
	}
	return "projects/" + project
}

func (c *EarthEngineClient) destination(params *domain.Parameters) string {
	return exportDestination(c.export, params)
}

// RequestID is stable for a task within one run.
func RequestID(namespace uuid.UUID, task domain.TaskSpec) string {
	return uuid.NewSHA1(namespace, []byte(strconv.Itoa(task.Index)+"/"+task.ExportPrefix())).String()
}

// --- table:export body ---

type exportTableRequest struct {
	Expression        *expression        `json:"expression"`
	Description       string             `json:"description,omitempty"`
	RequestID         string             `json:"requestId,omitempty"`
	FileExportOptions *fileExportOptions `json:"fileExportOptions"`
}

type expression struct {
	Result string               `json:"result"`
	Values map[string]valueNode `json:"values"`
}

// valueNode holds exactly one of its fields.
type valueNode struct {
	ConstantValue           any                 `json:"constantValue,omitempty"`
	FunctionInvocationValue *functionInvocation `json:"functionInvocationValue,omitempty"`
}

type functionInvocation struct {
	FunctionName string               `json:"functionName"`
	Arguments    map[string]valueNode `json:"arguments"`
}

type fileExportOptions struct {
	FileFormat              string                   `json:"fileFormat"`
	DriveDestination        *driveDestination        `json:"driveDestination,omitempty"`
	CloudStorageDestination *cloudStorageDestination `json:"cloudStorageDestination,omitempty"`
}

type driveDestination struct {
	Folder         string `json:"folder,omitempty"`
	FilenamePrefix string `json:"filenamePrefix"`
}

type cloudStorageDestination struct {
	Bucket         string `json:"bucket"`
	FilenamePrefix string `json:"filenamePrefix"`
}

// operation is the long-running operation returned for an accepted export.
type operation struct {
	Name     string         `json:"name"`
	Done     bool           `json:"done,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c *EarthEngineClient) exportRequest(task domain.TaskSpec, requestID string) *exportTableRequest {
	p := task.Params
	args := map[string]valueNode{
		"landsatId":                constant(task.Identifier),
		"waterMethod":              constant(p.WaterMethod),
		"maxDistance":              constant(p.MaxDistance),
		"fillSize":                 constant(p.FillSize),
		"maxDistanceBranchRemoval": constant(p.BranchRemovalDistance),
	}
	if task.Mode == domain.ModePoint && task.Point != nil {
		bounds := geo.BufferBounds(task.Point.Lon, task.Point.Lat, p.Radius)
		args["aoi"] = constant(map[string]any{
			"type":        "Polygon",
			"coordinates": [][][]float64{bounds.Ring()},
		})
	}

	prefix := task.ExportPrefix()
	opts := &fileExportOptions{FileFormat: strings.ToUpper(p.OutputFormat)}
	if c.export.Destination == domain.DestinationGCS {
		opts.CloudStorageDestination = &cloudStorageDestination{
			Bucket:         c.export.Bucket,
			FilenamePrefix: joinPrefix(p.OutputFolder, prefix),
		}
	} else {
		opts.DriveDestination = &driveDestination{
			Folder:         p.OutputFolder,
			FilenamePrefix: prefix,
		}
	}

	return &exportTableRequest{
		Expression: &expression{
			Result: "0",
			Values: map[string]valueNode{
				"0": {FunctionInvocationValue: &functionInvocation{
					FunctionName: c.cfg.Algorithm,
					Arguments:    args,
				}},
			},
		},
		Description:       prefix,
		RequestID:         requestID,
		FileExportOptions: opts,
	}
}

func constant(v any) valueNode {
	return valueNode{ConstantValue: v}
}

func joinPrefix(folder, prefix string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return prefix
	}
	return folder + "/" + prefix
}

func exportDestination(export domain.ExportConfig, params *domain.Parameters) string {
	if export.Destination == domain.DestinationGCS {
		return "gs://" + export.Bucket + "/" + strings.Trim(params.OutputFolder, "/")
	}
	if params.OutputFolder == "" {
		return "the root of Google Drive"
	}
	return params.OutputFolder
}

func printConfirmation(out io.Writer, prefix, destination, format string) {
	if out == nil {
		return
	}
	fmt.Fprintf(out, "%s will be exported to %s as %s file\n", prefix, destination, format)
}

func remoteMessage(err *googleapi.Error) string {
	if msg := strings.TrimSpace(err.Message); msg != "" {
		return msg
	}
	if body := strings.TrimSpace(err.Body); body != "" {
		return body
	}
	return http.StatusText(err.Code)
}
