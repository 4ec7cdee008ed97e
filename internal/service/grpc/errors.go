package grpcsvc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/transport/problem"
)

const errorDomain = "storefront"

var kindCodes = map[problem.Kind]codes.Code{
	problem.KindInternal:           codes.Internal,
	problem.KindInvalidArgument:    codes.InvalidArgument,
	problem.KindNotFound:           codes.NotFound,
	problem.KindAlreadyExists:      codes.AlreadyExists,
	problem.KindFailedPrecondition: codes.FailedPrecondition,
	problem.KindConflict:           codes.Aborted,
	problem.KindUnavailable:        codes.Unavailable,
	problem.KindCanceled:           codes.Canceled,
	problem.KindDeadlineExceeded:   codes.DeadlineExceeded,
}

// failurePayload хранит ошибку под idempotency-key.
type failurePayload struct {
	Code       codes.Code         `json:"code"`
	Reason     string             `json:"reason"`
	Message    string             `json:"message"`
	ProductIDs []string           `json:"product_ids,omitempty"`
	Shortages  []problem.Shortage `json:"shortages,omitempty"`
}

// toStatus переводит ошибку сервиса в gRPC status с ErrorInfo и, для нехватки остатков,
// PreconditionFailure по каждой позиции.
func toStatus(err error) *status.Status {
	p := problem.Describe(err)
	return buildStatus(failurePayload{
		Code:       kindCodes[p.Kind],
		Reason:     p.Code,
		Message:    p.Message,
		ProductIDs: p.ProductIDs,
		Shortages:  p.Shortages,
	})
}

func buildStatus(payload failurePayload) *status.Status {
	code := payload.Code
	if code == codes.OK {
		code = codes.Internal
	}
	st := status.New(code, payload.Message)

	info := &errdetails.ErrorInfo{
		Reason: strings.ToUpper(payload.Reason),
		Domain: errorDomain,
	}
	if len(payload.ProductIDs) > 0 {
		info.Metadata = map[string]string{"product_ids": strings.Join(payload.ProductIDs, ",")}
	}
	for _, s := range payload.Shortages {
		if info.Metadata == nil {
			info.Metadata = make(map[string]string, 2*len(payload.Shortages))
		}
		info.Metadata["requested."+s.ProductID] = strconv.FormatInt(s.Requested, 10)
		info.Metadata["available."+s.ProductID] = strconv.FormatInt(s.Available, 10)
	}
	withInfo, err := st.WithDetails(info)
	if err != nil {
		return st
	}
	st = withInfo

	if len(payload.Shortages) > 0 {
		failure := &errdetails.PreconditionFailure{}
		for _, s := range payload.Shortages {
			failure.Violations = append(failure.Violations, &errdetails.PreconditionFailure_Violation{
				Type:        "STOCK",
				Subject:     s.ProductID,
				Description: fmt.Sprintf("requested=%d available=%d", s.Requested, s.Available),
			})
		}
		if withFailure, err := st.WithDetails(failure); err == nil {
			st = withFailure
		}
	}
	return st
}

func encodeFailure(st *status.Status, err error) []byte {
	p := problem.Describe(err)
	data, marshalErr := json.Marshal(failurePayload{
		Code:       st.Code(),
		Reason:     p.Code,
		Message:    st.Message(),
		ProductIDs: p.ProductIDs,
		Shortages:  p.Shortages,
	})
	if marshalErr != nil {
		return nil
	}
	return data
}

func decodeFailure(body []byte, code int) error {
	var payload failurePayload
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		return buildStatus(payload).Err()
	}
	if code > int(codes.OK) && code <= int(codes.Unauthenticated) {
		return status.Error(codes.Code(uint32(code)), "previous request with the same idempotency key failed")
	}
	return status.Error(codes.Internal, "previous request with the same idempotency key failed")
}
