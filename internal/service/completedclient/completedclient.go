package completedclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/mcelebi/qrtransfer/internal/model"
)

// Client posts scraped payment notices to the completion endpoint. The
// orchestrator only marks a mail seen after this call succeeds.
type Client interface {
	PostCompleted(ctx context.Context, notice model.PaymentNotice) error
}

const completedPath = "/api/qrtransfer/completed"

type client struct {
	serviceAddr string
}

func New(serviceAddr string) Client {
	return client{serviceAddr: serviceAddr}
}

func (c client) PostCompleted(ctx context.Context, notice model.PaymentNotice) error {
	resp, err := resty.New().R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(notice).
		Post(c.serviceAddr + completedPath)
	if err != nil {
		return err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	default:
		return fmt.Errorf("payment completed status: %d", resp.StatusCode())
	}
}
