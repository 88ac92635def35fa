package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/contract-gateway/internal/contract"
	"github.com/smartdevs17/contract-gateway/internal/metrics"
	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// Reader performs the contract's read-only calls. It holds no mutable state
// and is safe for unlimited concurrent use.
type Reader struct {
	descriptor *contract.Descriptor
	caller     ethereum.ContractCaller
	metrics    *metrics.PrometheusMetrics
	logger     *logrus.Entry
}

// NewReader creates a reader. pm may be nil.
func NewReader(descriptor *contract.Descriptor, caller ethereum.ContractCaller, pm *metrics.PrometheusMetrics) *Reader {
	return &Reader{
		descriptor: descriptor,
		caller:     caller,
		metrics:    pm,
		logger:     utils.ComponentLogger("reader"),
	}
}

// Descriptor returns the contract the reader calls
func (r *Reader) Descriptor() *contract.Descriptor {
	return r.descriptor
}

// ReadName calls getName()
func (r *Reader) ReadName(ctx context.Context) (string, error) {
	out, err := r.call(ctx, contract.MethodGetName)
	if err != nil {
		return "", err
	}
	name, ok := out[0].(string)
	if !ok {
		return "", r.fail(contract.MethodGetName, fmt.Errorf("unexpected getName output type %T", out[0]))
	}
	return name, nil
}

// ReadBalance calls getBalance()
func (r *Reader) ReadBalance(ctx context.Context) (contract.Balance, error) {
	out, err := r.call(ctx, contract.MethodGetBalance)
	if err != nil {
		return contract.Balance{}, err
	}
	wei, ok := out[0].(*big.Int)
	if !ok {
		return contract.Balance{}, r.fail(contract.MethodGetBalance, fmt.Errorf("unexpected getBalance output type %T", out[0]))
	}
	return contract.NewBalance(wei), nil
}

func (r *Reader) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := r.descriptor.Pack(method)
	if err != nil {
		return nil, r.fail(method, err)
	}

	to := r.descriptor.Address()
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, r.fail(method, err)
	}

	out, err := r.descriptor.Unpack(method, raw)
	if err != nil {
		return nil, r.fail(method, err)
	}
	if len(out) == 0 {
		return nil, r.fail(method, fmt.Errorf("%s returned no values", method))
	}

	r.record(method, "success")
	return out, nil
}

// fail logs the failure once and returns it classified.
func (r *Reader) fail(method string, err error) error {
	r.logger.WithFields(logrus.Fields{
		"method":   method,
		"contract": r.descriptor.Address().Hex(),
		"error":    err,
	}).Error("Contract read failed")
	r.record(method, "error")
	return Classify(err)
}

func (r *Reader) record(method, status string) {
	if r.metrics != nil {
		r.metrics.RecordContractCall(method, status)
	}
}
