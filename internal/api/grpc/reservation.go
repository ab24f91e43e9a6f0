package grpc

import (
	"context"

	"google.golang.org/grpc"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/service"
)

// ReservationServiceName is the fully qualified gRPC service name.
const ReservationServiceName = "rentacar.reservations.v1.ReservationService"

type GetReservationRequest struct {
	ID int64 `json:"id"`
}

type CancelReservationRequest struct {
	ID int64 `json:"id"`
}

type ListReservationsRequest struct {
	Username string                   `json:"username"`
	Status   domain.ReservationStatus `json:"status,omitempty"`
	Page     int32                    `json:"page,omitempty"`
	PageSize int32                    `json:"page_size,omitempty"`
}

type ListReservationsResponse struct {
	Reservations []domain.Reservation `json:"reservations"`
	Total        int32                `json:"total"`
}

// ReservationServer is the read and cancel surface for customer-facing
// clients. Staff operations stay on HTTP.
type ReservationServer interface {
	GetReservation(ctx context.Context, req *GetReservationRequest) (*domain.Reservation, error)
	ListCustomerReservations(ctx context.Context, req *ListReservationsRequest) (*ListReservationsResponse, error)
	CancelReservation(ctx context.Context, req *CancelReservationRequest) (*domain.Reservation, error)
}

type ReservationHandler struct {
	reservations service.ReservationService
}

func NewReservationHandler(reservations service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

func (h *ReservationHandler) GetReservation(ctx context.Context, req *GetReservationRequest) (*domain.Reservation, error) {
	res, _, err := h.owned(ctx, req.ID)
	if err != nil {
		return nil, toStatus(ctx, "GetReservation", err)
	}
	return res, nil
}

func (h *ReservationHandler) ListCustomerReservations(ctx context.Context, req *ListReservationsRequest) (*ListReservationsResponse, error) {
	if _, err := authorize(ctx, req.Username); err != nil {
		return nil, err
	}
	list, total, err := h.reservations.ListByCustomer(ctx, req.Username, req.Status, req.Page, req.PageSize)
	if err != nil {
		return nil, toStatus(ctx, "ListCustomerReservations", err)
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	return &ListReservationsResponse{Reservations: list, Total: total}, nil
}

func (h *ReservationHandler) CancelReservation(ctx context.Context, req *CancelReservationRequest) (*domain.Reservation, error) {
	cur, caller, err := h.owned(ctx, req.ID)
	if err != nil {
		return nil, toStatus(ctx, "CancelReservation", err)
	}
	res, err := h.reservations.Cancel(ctx, cur.ID, caller)
	if err != nil {
		return nil, toStatus(ctx, "CancelReservation", err)
	}
	return res, nil
}

// owned loads the reservation and checks the caller may act on it.
func (h *ReservationHandler) owned(ctx context.Context, id int64) (*domain.Reservation, string, error) {
	if _, err := GetUsernameFromContext(ctx); err != nil {
		return nil, "", err
	}
	res, err := h.reservations.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	caller, err := authorize(ctx, res.CustomerUsername)
	if err != nil {
		return nil, "", err
	}
	return res, caller, nil
}

// RegisterReservationServer adds srv to s under ReservationServiceName.
func RegisterReservationServer(s grpc.ServiceRegistrar, srv ReservationServer) {
	s.RegisterService(&reservationServiceDesc, srv)
}

var reservationServiceDesc = grpc.ServiceDesc{
	ServiceName: ReservationServiceName,
	HandlerType: (*ReservationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetReservation", ReservationServer.GetReservation),
		unary("ListCustomerReservations", ReservationServer.ListCustomerReservations),
		unary("CancelReservation", ReservationServer.CancelReservation),
	},
	Streams: []grpc.StreamDesc{},
}

// unary builds the method descriptor generated code would emit for one call.
func unary[Req, Resp any](method string, call func(ReservationServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReservationServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ReservationServiceName + "/" + method}
			return interceptor(ctx, in, info, handler)
		},
	}
}
