package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lennartalff/cloudbot/pkg/history"
	"github.com/lennartalff/cloudbot/pkg/xerrors"
)

// Client accesses the status API of a running daemon.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient creates a client for the daemon listening at addr.
func NewClient(addr string) *Client {
	return &Client{
		base: "http://" + addr,
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// get performs a GET request and decodes the JSON response into v.
func (c *Client) get(path string, v any) error {
	resp, err := c.hc.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return xerrors.FromHTTPResponse(resp)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// Status returns the daemon status.
func (c *Client) Status() (*Status, error) {
	st := &Status{}
	if err := c.get("/status", st); err != nil {
		return nil, err
	}
	return st, nil
}

// Backups returns the n most recent backup runs.
func (c *Client) Backups(n int) ([]history.Run, error) {
	var runs []history.Run
	err := c.get("/backups?n="+strconv.Itoa(n), &runs)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// TriggerBackup asks the daemon to start a backup run.
func (c *Client) TriggerBackup() error {
	resp, err := c.hc.Post(c.base+"/backups", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return xerrors.FromHTTPResponse(resp)
	}
	return nil
}

// String implements fmt.Stringer for a human readable status report.
func (s *Status) String() string {
	out := "idle"
	if s.Running {
		out = "backup in progress"
	}
	out += fmt.Sprintf("\nnext backup: %s", s.Next.Format(time.RFC1123))
	if s.Last != nil {
		outcome := "ok"
		if !s.Last.Success {
			outcome = "failed: " + s.Last.Error
		}
		out += fmt.Sprintf("\nlast backup: %s (%s) %s",
			s.Last.StartedAt.Format(time.RFC1123), s.Last.Trigger, outcome)
	}
	return out
}
