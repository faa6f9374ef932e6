package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"presenca/server/internal/auth"
	"presenca/server/internal/clients"
	"presenca/server/internal/config"
	"presenca/server/internal/model"
	"presenca/server/internal/report"
	"presenca/server/internal/store"
)

type Server struct {
	cfg      config.Config
	store    store.Store
	identity clients.KeySource
	redis    *redis.Client
	validate *validator.Validate
	statsTTL time.Duration
}

func NewServer(cfg config.Config, st store.Store, identity clients.KeySource, redisClient *redis.Client) (*Server, error) {
	if identity == nil {
		return nil, errors.New("identity_not_configured")
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		cfg:      cfg,
		store:    st,
		identity: identity,
		redis:    redisClient,
		validate: validate,
		statsTTL: cfg.StatsCacheTTL,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/turmas", s.handleGetTurmas)
		r.Post("/turma", s.handleCreateTurma)
		r.Get("/turma/{turmaId}", s.handleGetTurma)
		r.Patch("/turma/{turmaId}", s.handlePatchTurma)
		r.Delete("/turma/{turmaId}", s.handleDeleteTurma)
		r.Get("/turma/{turmaId}/relatorio", s.handleGetRelatorio)
		r.Patch("/turma/{turmaId}/frequencias/{alunoId}", s.handleUpdatePresenca)

		r.Get("/alunos", s.handleGetAlunos)
		r.Post("/aluno", s.handleCreateAluno)
		r.Get("/aluno/{alunoId}", s.handleGetAluno)
		r.Patch("/aluno/{alunoId}", s.handlePatchAluno)
		r.Delete("/aluno/{alunoId}", s.handleDeleteAluno)

		r.Post("/frequencia", s.handleCreateFrequencia)
		r.Get("/frequencias", s.handleGetFrequencias)

		r.Get("/estatisticas", s.handleGetEstatisticas)
	})

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		publicKey, err := s.identity.PublicKey(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "identity_unavailable")
			return
		}
		claims, err := auth.ParseToken(publicKey, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// Models

type turmaResponse struct {
	ID          string `json:"id"`
	NomeEscola  string `json:"nomeEscola"`
	AnoTurma    string `json:"anoTurma"`
	CodigoTurma string `json:"codigoTurma"`
	AlunosCount int    `json:"alunosCount"`
}

type alunoResponse struct {
	ID          string `json:"id"`
	Nome        string `json:"nome"`
	Sobrenome   string `json:"sobrenome,omitempty"`
	AnoCursando int    `json:"anoCursando"`
	TurmaID     string `json:"turmaId"`
	NomeTurma   string `json:"nomeTurma,omitempty"`
	CodigoTurma string `json:"codigoTurma,omitempty"`
}

type frequenciaResponse struct {
	ID      string                `json:"id"`
	TurmaID string                `json:"turmaId"`
	Data    string                `json:"data"`
	Alunos  []model.PresencaAluno `json:"alunos"`
}

type createTurmaRequest struct {
	NomeEscola string `json:"nomeEscola" validate:"required"`
	AnoTurma   string `json:"anoTurma" validate:"required"`
}

type patchTurmaRequest struct {
	NomeEscola *string `json:"nomeEscola"`
	AnoTurma   *string `json:"anoTurma"`
}

type createAlunoRequest struct {
	Nome        string `json:"nome" validate:"required"`
	Sobrenome   string `json:"sobrenome"`
	AnoCursando int    `json:"anoCursando" validate:"gt=0"`
	TurmaID     string `json:"turmaId" validate:"required"`
}

type patchAlunoRequest struct {
	Nome        *string `json:"nome"`
	Sobrenome   *string `json:"sobrenome"`
	AnoCursando *int    `json:"anoCursando"`
}

type createFrequenciaRequest struct {
	TurmaID   string          `json:"turmaId"`
	Data      string          `json:"data"`
	Presencas map[string]bool `json:"presencas"`
}

type updatePresencaRequest struct {
	Edicoes map[string]bool `json:"edicoes"`
}

// Turmas

func (s *Server) handleGetTurmas(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context(), store.Turmas)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	resp := make([]turmaResponse, 0, len(docs))
	for _, doc := range docs {
		turma, err := model.TurmaFromDocument(doc)
		if err != nil {
			writeError(w, http.StatusBadGateway, "store_error")
			return
		}
		alunos, err := s.store.QueryByEquality(r.Context(), store.Alunos, "turmaId", turma.ID)
		if err != nil {
			writeError(w, http.StatusBadGateway, "store_error")
			return
		}
		turma.AlunosCount = len(alunos)
		resp = append(resp, mapTurma(turma))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTurma(w http.ResponseWriter, r *http.Request) {
	var req createTurmaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if code, ok := s.validateRequest(req); !ok {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	codigo, err := model.NovoCodigoTurma()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	turma := model.Turma{
		NomeEscola:  strings.TrimSpace(req.NomeEscola),
		AnoTurma:    strings.TrimSpace(req.AnoTurma),
		CodigoTurma: codigo,
	}
	id, err := s.store.AddDocument(r.Context(), store.Turmas, turma.Fields())
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	turma.ID = id
	if claims := claimsFromContext(r.Context()); claims != nil {
		log.Printf("turma %s created by %s", turma.ID, claims.UserID)
	}
	writeJSON(w, http.StatusOK, mapTurma(turma))
}

func (s *Server) handleGetTurma(w http.ResponseWriter, r *http.Request) {
	turma, err := s.loadTurma(r.Context(), chi.URLParam(r, "turmaId"))
	if err != nil {
		s.writeLoadError(w, err, "turma_not_found")
		return
	}
	alunos, err := s.store.QueryByEquality(r.Context(), store.Alunos, "turmaId", turma.ID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	turma.AlunosCount = len(alunos)
	writeJSON(w, http.StatusOK, mapTurma(turma))
}

func (s *Server) handlePatchTurma(w http.ResponseWriter, r *http.Request) {
	var req patchTurmaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	fields := map[string]any{}
	if req.NomeEscola != nil {
		if strings.TrimSpace(*req.NomeEscola) == "" {
			writeError(w, http.StatusBadRequest, "missing_nomeEscola")
			return
		}
		fields["nomeEscola"] = strings.TrimSpace(*req.NomeEscola)
	}
	if req.AnoTurma != nil {
		if strings.TrimSpace(*req.AnoTurma) == "" {
			writeError(w, http.StatusBadRequest, "missing_anoTurma")
			return
		}
		fields["anoTurma"] = strings.TrimSpace(*req.AnoTurma)
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	turmaID := chi.URLParam(r, "turmaId")
	if err := s.store.UpdateDocument(r.Context(), store.Turmas, turmaID, fields); err != nil {
		s.writeLoadError(w, err, "turma_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTurma(w http.ResponseWriter, r *http.Request) {
	turma, err := s.loadTurma(r.Context(), chi.URLParam(r, "turmaId"))
	if err != nil {
		s.writeLoadError(w, err, "turma_not_found")
		return
	}
	alunos, err := s.store.QueryByEquality(r.Context(), store.Alunos, "turmaId", turma.ID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	if len(alunos) > 0 {
		writeError(w, http.StatusConflict, "turma_not_empty")
		return
	}
	if err := s.store.DeleteDocument(r.Context(), store.Turmas, turma.ID); err != nil {
		s.writeLoadError(w, err, "turma_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Alunos

func (s *Server) handleGetAlunos(w http.ResponseWriter, r *http.Request) {
	turmaID := r.URL.Query().Get("turmaId")
	var (
		docs []store.Document
		err  error
	)
	if turmaID != "" {
		docs, err = s.store.QueryByEquality(r.Context(), store.Alunos, "turmaId", turmaID)
	} else {
		docs, err = s.store.ListDocuments(r.Context(), store.Alunos)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	alunos, err := decodeAlunos(docs)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	sortAlunos(alunos)
	resp := make([]alunoResponse, 0, len(alunos))
	for _, aluno := range alunos {
		resp = append(resp, mapAluno(aluno))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateAluno(w http.ResponseWriter, r *http.Request) {
	var req createAlunoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if code, ok := s.validateRequest(req); !ok {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	turma, err := s.loadTurma(r.Context(), req.TurmaID)
	if err != nil {
		s.writeLoadError(w, err, "turma_not_found")
		return
	}
	aluno := model.Aluno{
		Nome:        strings.TrimSpace(req.Nome),
		Sobrenome:   strings.TrimSpace(req.Sobrenome),
		AnoCursando: req.AnoCursando,
		TurmaID:     turma.ID,
		NomeTurma:   turma.NomeEscola,
		CodigoTurma: turma.CodigoTurma,
	}
	id, err := s.store.AddDocument(r.Context(), store.Alunos, aluno.Fields())
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	aluno.ID = id
	writeJSON(w, http.StatusOK, mapAluno(aluno))
}

func (s *Server) handleGetAluno(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), store.Alunos, chi.URLParam(r, "alunoId"))
	if err != nil {
		s.writeLoadError(w, err, "aluno_not_found")
		return
	}
	aluno, err := model.AlunoFromDocument(doc)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	writeJSON(w, http.StatusOK, mapAluno(aluno))
}

func (s *Server) handlePatchAluno(w http.ResponseWriter, r *http.Request) {
	var req patchAlunoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	fields := map[string]any{}
	if req.Nome != nil {
		if strings.TrimSpace(*req.Nome) == "" {
			writeError(w, http.StatusBadRequest, "missing_nome")
			return
		}
		fields["nome"] = strings.TrimSpace(*req.Nome)
	}
	if req.Sobrenome != nil {
		fields["sobrenome"] = strings.TrimSpace(*req.Sobrenome)
	}
	if req.AnoCursando != nil {
		if *req.AnoCursando <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_anoCursando")
			return
		}
		fields["anoCursando"] = *req.AnoCursando
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	alunoID := chi.URLParam(r, "alunoId")
	if err := s.store.UpdateDocument(r.Context(), store.Alunos, alunoID, fields); err != nil {
		s.writeLoadError(w, err, "aluno_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAluno(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), store.Alunos, chi.URLParam(r, "alunoId"))
	if err != nil {
		s.writeLoadError(w, err, "aluno_not_found")
		return
	}
	aluno, err := model.AlunoFromDocument(doc)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	if err := s.store.DeleteDocument(r.Context(), store.Alunos, aluno.ID); err != nil {
		s.writeLoadError(w, err, "aluno_not_found")
		return
	}
	if err := s.recountTurma(r.Context(), aluno.TurmaID); err != nil {
		s.writeLoadError(w, err, "turma_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recountTurma(ctx context.Context, turmaID string) error {
	alunos, err := s.store.QueryByEquality(ctx, store.Alunos, "turmaId", turmaID)
	if err != nil {
		return err
	}
	return s.store.UpdateDocument(ctx, store.Turmas, turmaID, map[string]any{"alunosCount": len(alunos)})
}

// Frequencia

func (s *Server) handleCreateFrequencia(w http.ResponseWriter, r *http.Request) {
	var req createFrequenciaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Data != "" {
		if _, err := time.Parse("2006-01-02", req.Data); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_data")
			return
		}
	}
	if req.TurmaID != "" {
		if _, err := s.loadTurma(r.Context(), req.TurmaID); err != nil {
			s.writeLoadError(w, err, "turma_not_found")
			return
		}
	}

	alunos, err := s.loadAlunos(r.Context(), req.TurmaID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	frequencia, err := report.RecordDailyAttendance(r.Context(), s.store, req.TurmaID, req.Data, alunos, req.Presencas)
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapFrequencia(frequencia))
}

func (s *Server) handleGetFrequencias(w http.ResponseWriter, r *http.Request) {
	turmaID := r.URL.Query().Get("turmaId")
	if turmaID == "" {
		writeError(w, http.StatusBadRequest, "missing_turma")
		return
	}
	frequencias, err := s.loadFrequencias(r.Context(), turmaID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	resp := make([]frequenciaResponse, 0, len(frequencias))
	for _, frequencia := range frequencias {
		resp = append(resp, mapFrequencia(frequencia))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Relatorio

type relatorioRow struct {
	ID          string          `json:"id"`
	Nome        string          `json:"nome"`
	Sobrenome   string          `json:"sobrenome,omitempty"`
	AnoCursando int             `json:"anoCursando"`
	Presencas   map[string]bool `json:"presencas"`
	Percentual  float64         `json:"percentual"`
}

type relatorioResponse struct {
	Turma  turmaResponse  `json:"turma"`
	Datas  []string       `json:"datas"`
	Alunos []relatorioRow `json:"alunos"`
}

func (s *Server) handleGetRelatorio(w http.ResponseWriter, r *http.Request) {
	turma, err := s.loadTurma(r.Context(), chi.URLParam(r, "turmaId"))
	if err != nil {
		s.writeLoadError(w, err, "turma_not_found")
		return
	}
	alunos, err := s.loadAlunos(r.Context(), turma.ID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	frequencias, err := s.loadFrequencias(r.Context(), turma.ID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}

	matrix := report.BuildMatrix(alunos, frequencias)
	turma.AlunosCount = len(alunos)
	resp := relatorioResponse{
		Turma:  mapTurma(turma),
		Datas:  matrix.Datas,
		Alunos: make([]relatorioRow, 0, len(matrix.Rows)),
	}
	for _, row := range matrix.Rows {
		resp.Alunos = append(resp.Alunos, relatorioRow{
			ID:          row.Aluno.ID,
			Nome:        row.Aluno.Nome,
			Sobrenome:   row.Aluno.Sobrenome,
			AnoCursando: row.Aluno.AnoCursando,
			Presencas:   row.Presencas,
			Percentual:  row.Percentual,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdatePresenca(w http.ResponseWriter, r *http.Request) {
	var req updatePresencaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.Edicoes) == 0 {
		writeError(w, http.StatusBadRequest, "missing_edicoes")
		return
	}

	turmaID := chi.URLParam(r, "turmaId")
	doc, err := s.store.GetDocument(r.Context(), store.Alunos, chi.URLParam(r, "alunoId"))
	if err != nil {
		s.writeLoadError(w, err, "aluno_not_found")
		return
	}
	aluno, err := model.AlunoFromDocument(doc)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	if aluno.TurmaID != turmaID {
		writeError(w, http.StatusNotFound, "aluno_not_found")
		return
	}

	frequencias, err := s.loadFrequencias(r.Context(), turmaID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	updated, err := report.UpdateStudentPresence(r.Context(), s.store, aluno.NomeCompleto(), req.Edicoes, frequencias)
	if err != nil {
		if len(updated) > 0 {
			log.Printf("presence edit partially applied for %s: %d of %d records written before failure", aluno.ID, len(updated), len(frequencias))
		}
		s.writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updatedRecords": updated})
}

// Estatisticas

const statsCacheKey = "estatisticas:geral"

func (s *Server) handleGetEstatisticas(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		cached, err := s.redis.Get(r.Context(), statsCacheKey).Result()
		if err == nil {
			var stats report.Statistics
			if json.Unmarshal([]byte(cached), &stats) == nil {
				writeJSON(w, http.StatusOK, stats)
				return
			}
		} else if err != redis.Nil {
			log.Printf("estatisticas cache read error: %v", err)
		}
	}

	alunoDocs, err := s.store.ListDocuments(r.Context(), store.Alunos)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	turmaDocs, err := s.store.ListDocuments(r.Context(), store.Turmas)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	frequenciaDocs, err := s.store.ListDocuments(r.Context(), store.FrequenciaDiaria)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}

	alunos, err := decodeAlunos(alunoDocs)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}
	turmas := make([]model.Turma, 0, len(turmaDocs))
	for _, doc := range turmaDocs {
		turma, err := model.TurmaFromDocument(doc)
		if err != nil {
			writeError(w, http.StatusBadGateway, "store_error")
			return
		}
		turmas = append(turmas, turma)
	}
	frequencias, err := decodeFrequencias(frequenciaDocs)
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_error")
		return
	}

	stats := report.ComputeHomeStatistics(alunos, turmas, frequencias)
	if s.redis != nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.redis.Set(r.Context(), statsCacheKey, payload, s.statsTTL).Err(); err != nil {
				log.Printf("estatisticas cache write error: %v", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// Loading helpers

func (s *Server) loadTurma(ctx context.Context, turmaID string) (model.Turma, error) {
	doc, err := s.store.GetDocument(ctx, store.Turmas, turmaID)
	if err != nil {
		return model.Turma{}, err
	}
	return model.TurmaFromDocument(doc)
}

func (s *Server) loadAlunos(ctx context.Context, turmaID string) ([]model.Aluno, error) {
	docs, err := s.store.QueryByEquality(ctx, store.Alunos, "turmaId", turmaID)
	if err != nil {
		return nil, err
	}
	alunos, err := decodeAlunos(docs)
	if err != nil {
		return nil, err
	}
	sortAlunos(alunos)
	return alunos, nil
}

func (s *Server) loadFrequencias(ctx context.Context, turmaID string) ([]model.Frequencia, error) {
	docs, err := s.store.QueryByEquality(ctx, store.FrequenciaDiaria, "turmaId", turmaID)
	if err != nil {
		return nil, err
	}
	return decodeFrequencias(docs)
}

func decodeAlunos(docs []store.Document) ([]model.Aluno, error) {
	alunos := make([]model.Aluno, 0, len(docs))
	for _, doc := range docs {
		aluno, err := model.AlunoFromDocument(doc)
		if err != nil {
			return nil, err
		}
		alunos = append(alunos, aluno)
	}
	return alunos, nil
}

func decodeFrequencias(docs []store.Document) ([]model.Frequencia, error) {
	frequencias := make([]model.Frequencia, 0, len(docs))
	for _, doc := range docs {
		frequencia, err := model.FrequenciaFromDocument(doc)
		if err != nil {
			return nil, err
		}
		frequencias = append(frequencias, frequencia)
	}
	return frequencias, nil
}

func sortAlunos(alunos []model.Aluno) {
	sort.SliceStable(alunos, func(i, j int) bool {
		return strings.ToLower(alunos[i].NomeCompleto()) < strings.ToLower(alunos[j].NomeCompleto())
	})
}

// Error mapping

func (s *Server) writeLoadError(w http.ResponseWriter, err error, notFoundCode string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundCode)
		return
	}
	writeError(w, http.StatusBadGateway, "store_error")
}

func (s *Server) writeReportError(w http.ResponseWriter, err error) {
	var validation *report.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, validation.Error())
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeError(w, http.StatusBadGateway, "store_error")
}

func (s *Server) validateRequest(req any) (string, bool) {
	err := s.validate.Struct(req)
	if err == nil {
		return "", true
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		if first.Tag() == "required" {
			return "missing_" + first.Field(), false
		}
		return "invalid_" + first.Field(), false
	}
	return "invalid_request", false
}

// Mapping helpers

func mapTurma(turma model.Turma) turmaResponse {
	return turmaResponse{
		ID:          turma.ID,
		NomeEscola:  turma.NomeEscola,
		AnoTurma:    turma.AnoTurma,
		CodigoTurma: turma.CodigoTurma,
		AlunosCount: turma.AlunosCount,
	}
}

func mapAluno(aluno model.Aluno) alunoResponse {
	return alunoResponse{
		ID:          aluno.ID,
		Nome:        aluno.Nome,
		Sobrenome:   aluno.Sobrenome,
		AnoCursando: aluno.AnoCursando,
		TurmaID:     aluno.TurmaID,
		NomeTurma:   aluno.NomeTurma,
		CodigoTurma: aluno.CodigoTurma,
	}
}

func mapFrequencia(frequencia model.Frequencia) frequenciaResponse {
	alunos := frequencia.Alunos
	if alunos == nil {
		alunos = []model.PresencaAluno{}
	}
	return frequenciaResponse{
		ID:      frequencia.ID,
		TurmaID: frequencia.TurmaID,
		Data:    frequencia.Data,
		Alunos:  alunos,
	}
}

// Utilities

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
