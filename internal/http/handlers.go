package http

import (
	"net/http"

	"feeledger/internal/auth"
	"feeledger/internal/core"
)

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.svc.Students.List(r.Context(), core.StudentQuery{
		Page:   queryInt(q, "page", 1),
		Limit:  queryInt(q, "limit", core.DefaultPageLimit),
		Search: sanitizeInput(q.Get("search")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(page).Write(w)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	student, err := s.svc.Students.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(envelope{"data": student}).Write(w)
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var in core.StudentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	student, err := s.svc.Students.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(envelope{"data": student, "message": "Student created successfully"}).Write(w)
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch core.StudentPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	student, err := s.svc.Students.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(envelope{"data": student}).Write(w)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Students.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	OK(envelope{"message": "Student deleted successfully"}).Write(w)
}

func (s *Server) handleListFeeTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.svc.FeeTypes.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(envelope{"fee_types": types}).Write(w)
}

func (s *Server) handleCreateFeeType(w http.ResponseWriter, r *http.Request) {
	var in core.FeeTypeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ft, err := s.svc.FeeTypes.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(envelope{"fee_type": ft}).Write(w)
}

func (s *Server) handleListFees(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	fees, err := s.svc.Ledger.ListFeesForStudent(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(envelope{"fees": fees}).Write(w)
}

func (s *Server) handleCreateFee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.FeeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	fee, err := s.svc.Ledger.CreateFee(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(envelope{"fee": fee}).Write(w)
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.PaymentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := s.svc.Ledger.AddPayment(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(envelope{"payment": payment}).Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in core.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(res).Write(w)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.RefreshToken == "" {
		writeError(w, r, core.Validationf("Missing required field: refresh_token"))
		return
	}
	pair, err := s.svc.Auth.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(pair).Write(w)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in core.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	caller, _ := auth.ClaimsFrom(r.Context())
	user, err := s.svc.Auth.Register(r.Context(), caller, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	Created(envelope{"message": "User registered successfully", "user": user}).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	user, err := s.svc.Auth.Me(r.Context(), claims)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(user).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	s.svc.Auth.Logout(r.Context(), claims)
	OK(envelope{"message": "Successfully logged out"}).Write(w)
}
