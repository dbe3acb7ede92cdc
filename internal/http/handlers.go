package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cajero/internal/core"
	"cajero/internal/ledger"
	"cajero/internal/log"
	"cajero/internal/middleware/trace"
	"cajero/internal/services"
	"cajero/internal/view"
)

// Client-facing texts.
const (
	msgBadRequest        = "Formato de solicitud inválido."
	msgInvalidAmount     = "Ingrese un monto válido mayor a 0."
	msgInsufficientFunds = "El monto excede su saldo disponible."
	msgWrongPIN          = "PIN incorrecto. Intente nuevamente."
	msgUnauthenticated   = "Inicie sesión para continuar."
	msgRateLimited       = "Demasiados intentos. Intente nuevamente más tarde."
	msgInternal          = "No fue posible completar la operación. Intente nuevamente."
	msgNoReceipt         = "No hay transacciones para generar un comprobante."
	msgNotFound          = "Recurso no encontrado."
	msgMethodNotAllowed  = "Método no permitido."
)

const readyTimeout = 3 * time.Second

type accountView struct {
	Name          string     `json:"name"`
	AccountNumber string     `json:"accountNumber"`
	Balance       core.Money `json:"balance"`
	BalanceText   string     `json:"balanceText"`
}

func (s *Server) accountView(acct core.Account) accountView {
	return accountView{
		Name:          acct.Name,
		AccountNumber: acct.AccountNumber,
		Balance:       acct.Balance,
		BalanceText:   s.projector.FormatMoney(acct.Balance),
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}

	if err := s.terminal.Login(r.Context(), parser.Get("pin")); err != nil {
		s.writeError(w, r, log.OpLogin, err)
		return
	}
	acct := s.terminal.Account()
	NewJSONResponse().
		Message("Bienvenido, "+acct.Name+".").
		Field("account", s.accountView(acct)).
		Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.terminal.Logout(r.Context())
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// requireSession rejects requests made without an open session.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.terminal.Authenticated() {
			UnauthorizedError(CodeUnauthenticated, msgUnauthenticated).Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Field("account", s.accountView(s.terminal.Account())).Write(w)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}
	tx, err := s.terminal.Deposit(r.Context(), ledger.DepositRequest{
		Amount:      parser.Get("amount"),
		Description: parser.Get("description"),
	})
	if err != nil {
		s.writeError(w, r, log.OpDeposit, err)
		return
	}
	s.writeApplied(w, tx, "Depósito realizado correctamente. Nuevo saldo: "+s.projector.FormatMoney(tx.BalanceAfter)+".")
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}
	tx, err := s.terminal.Withdraw(r.Context(), ledger.WithdrawalRequest{
		Amount:      parser.Get("amount"),
		Description: parser.Get("description"),
	})
	if err != nil {
		s.writeError(w, r, log.OpWithdraw, err)
		return
	}
	s.writeApplied(w, tx, "Retiro realizado correctamente. Nuevo saldo: "+s.projector.FormatMoney(tx.BalanceAfter)+".")
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}
	tx, err := s.terminal.PayService(r.Context(), ledger.ServicePaymentRequest{
		Service:   parser.Get("service"),
		Reference: parser.Get("reference"),
		Amount:    parser.Get("amount"),
	})
	if err != nil {
		s.writeError(w, r, log.OpPayment, err)
		return
	}
	s.writeApplied(w, tx, "Pago registrado correctamente. Nuevo saldo: "+s.projector.FormatMoney(tx.BalanceAfter)+".")
}

func (s *Server) handleInquiry(w http.ResponseWriter, r *http.Request) {
	tx, err := s.terminal.InquireBalance(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpInquiry, err)
		return
	}
	s.writeApplied(w, tx, "Consulta registrada. Su saldo disponible es "+s.projector.FormatMoney(tx.BalanceAfter)+".")
}

func (s *Server) writeApplied(w http.ResponseWriter, tx core.Transaction, message string) {
	NewJSONResponse().
		Status(http.StatusCreated).
		Message(message).
		Field("transaction", s.projector.Row(tx)).
		Field("balance", tx.BalanceAfter).
		Field("balanceText", s.projector.FormatMoney(tx.BalanceAfter)).
		Field("summary", s.projector.Summarize(&tx)).
		Write(w)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Field("transactions", s.projector.History(s.terminal.Account())).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	acct := s.terminal.Account()
	NewJSONResponse().
		Field("categories", view.CategoryCounts(acct)).
		Field("total", len(acct.Transactions)).
		Write(w)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.terminal.LastTransaction()
	if !ok {
		NotFoundError(msgNoReceipt).Write(w)
		return
	}
	NewJSONResponse().
		Field("summary", s.projector.Summarize(&tx)).
		Field("receipt", s.projector.Receipt(s.terminal.Account(), tx)).
		Write(w)
}

// writeError maps service and ledger failures onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		UnprocessableEntityError(CodeValidation, ve.Messages()...).Write(w)
	case errors.Is(err, core.ErrInvalidAmount):
		UnprocessableEntityError(CodeInvalidAmount, msgInvalidAmount).Write(w)
	case errors.Is(err, core.ErrInsufficientFunds):
		ErrorResponse(http.StatusConflict, CodeInsufficientFunds, msgInsufficientFunds).Write(w)
	case errors.Is(err, services.ErrWrongPIN):
		UnauthorizedError(CodeWrongPIN, msgWrongPIN).Write(w)
	case errors.Is(err, services.ErrNotAuthenticated):
		UnauthorizedError(CodeUnauthenticated, msgUnauthenticated).Write(w)
	default:
		s.events.LogError(r.Context(), "Operation failed", err, op, nil)
		InternalServerError(msgInternal).
			Field("requestId", trace.GetRequestID(r.Context())).
			Write(w)
	}
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Login rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r))
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, msgRateLimited).Write(w)
}
