/*
Package upstream holds HTTP clients for the services around the engine.

CLIENTS:
  DirectoryClient  Remote employee directory (attendance.EmployeeDirectory)
  FaceClient       Face verification and recognition (attendance.FaceVerifier)

ERRORS:
  A 404 from the directory is a NotFoundError. Every other non-2xx status,
  transport error or malformed body is returned as a plain error; the engine
  wraps it as an UpstreamError. Nothing is retried.
*/
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
)

// DefaultTimeout bounds each HTTP exchange.
const DefaultTimeout = 10 * time.Second

// DirectoryClient reads employee profiles from a remote directory:
//
//	GET {base}/employees       -> [profile]
//	GET {base}/employees/{id}  -> profile | 404
type DirectoryClient struct {
	baseURL string
	http    *http.Client
}

var _ attendance.EmployeeDirectory = (*DirectoryClient)(nil)

func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DirectoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// profileDTO is the directory's wire format.
type profileDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	JoiningDate string   `json:"joiningDate"`
	WeeklyOffs  []string `json:"weeklyOffs"`
	PhotoURL    string   `json:"photoUrl"`
}

func (p profileDTO) profile() (attendance.EmployeeProfile, error) {
	joining, err := calendar.Parse(p.JoiningDate)
	if err != nil {
		return attendance.EmployeeProfile{}, fmt.Errorf("employee %s: joiningDate: %w", p.ID, err)
	}
	offs, err := calendar.ParseWeekdays(p.WeeklyOffs)
	if err != nil {
		return attendance.EmployeeProfile{}, fmt.Errorf("employee %s: weeklyOffs: %w", p.ID, err)
	}
	return attendance.EmployeeProfile{
		ID:          p.ID,
		Name:        p.Name,
		JoiningDate: joining,
		WeeklyOffs:  offs,
		PhotoURL:    p.PhotoURL,
	}, nil
}

func (c *DirectoryClient) Get(ctx context.Context, employeeID string) (attendance.EmployeeProfile, error) {
	var dto profileDTO
	status, err := c.getJSON(ctx, "/employees/"+url.PathEscape(employeeID), &dto)
	if status == http.StatusNotFound {
		return attendance.EmployeeProfile{}, &attendance.NotFoundError{What: "employee", ID: employeeID}
	}
	if err != nil {
		return attendance.EmployeeProfile{}, err
	}
	return dto.profile()
}

func (c *DirectoryClient) Exists(ctx context.Context, employeeID string) (bool, error) {
	_, err := c.Get(ctx, employeeID)
	if errors.Is(err, attendance.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetMany fetches each profile in turn. Unknown IDs are skipped.
func (c *DirectoryClient) GetMany(ctx context.Context, employeeIDs []string) ([]attendance.EmployeeProfile, error) {
	var out []attendance.EmployeeProfile
	for _, id := range employeeIDs {
		p, err := c.Get(ctx, id)
		if errors.Is(err, attendance.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *DirectoryClient) List(ctx context.Context) ([]attendance.EmployeeProfile, error) {
	var dtos []profileDTO
	if _, err := c.getJSON(ctx, "/employees", &dtos); err != nil {
		return nil, err
	}
	out := make([]attendance.EmployeeProfile, 0, len(dtos))
	for _, d := range dtos {
		p, err := d.profile()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// getJSON returns the status code alongside any error so callers can tell
// a 404 apart.
func (c *DirectoryClient) getJSON(ctx context.Context, path string, dest any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("directory error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return resp.StatusCode, fmt.Errorf("directory: malformed response: %w", err)
	}
	return resp.StatusCode, nil
}
