package sipua

import (
	"context"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"
)

// ErrTransactionTerminated транзакция завершилась без финального ответа
var ErrTransactionTerminated = errors.New("transaction terminated without final response")

// requester отправляет запросы от имени сессий
type requester interface {
	// Do отправляет запрос в новой транзакции и ждет финального ответа
	Do(ctx context.Context, req *sip.Request) (*sip.Response, error)
	// Write отправляет запрос вне транзакции (ACK на 2xx)
	Write(req *sip.Request) error
}

// clientRequester requester поверх клиента sipgo
type clientRequester struct {
	client *sipgo.Client
}

func (c clientRequester) Do(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	var opts []sipgo.ClientRequestOption
	if req.Via() == nil {
		opts = append(opts, sipgo.ClientRequestAddVia)
	}

	tx, err := c.client.TransactionRequest(ctx, req, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send %s", req.Method)
	}
	defer tx.Terminate()

	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return nil, ErrTransactionTerminated
			}
			if res.StatusCode >= 200 {
				return res, nil
			}
		case <-tx.Done():
			if err := tx.Err(); err != nil {
				return nil, errors.Wrapf(err, "%s transaction failed", req.Method)
			}
			return nil, ErrTransactionTerminated
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c clientRequester) Write(req *sip.Request) error {
	if err := c.client.WriteRequest(req, sipgo.ClientRequestAddVia); err != nil {
		return errors.Wrapf(err, "failed to write %s", req.Method)
	}
	return nil
}
