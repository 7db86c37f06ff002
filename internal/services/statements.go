package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/statement-extract/bank-statement-api/internal/extractor"
	"github.com/statement-extract/bank-statement-api/internal/gemini"
	"github.com/statement-extract/bank-statement-api/internal/models"
	"github.com/statement-extract/bank-statement-api/internal/repository"
	"github.com/statement-extract/bank-statement-api/internal/salvage"
	"github.com/statement-extract/bank-statement-api/internal/storage"
	"github.com/statement-extract/bank-statement-api/internal/utils"
)

type StatementService interface {
	ExtractStatement(ctx context.Context, req *models.UploadRequest) (*models.ExtractionResponse, error)
	GetStatement(ctx context.Context, id string) (*models.Statement, error)
	DownloadStatement(ctx context.Context, id string) (*models.Statement, []byte, error)
	ListStatements(ctx context.Context, limit int) ([]*models.Statement, error)
}

type statementService struct {
	repo    repository.Repository
	storage storage.Storage
	ai      gemini.Client
	logger  *utils.Logger
}

func NewService(repo repository.Repository, store storage.Storage, ai gemini.Client, logger *utils.Logger) StatementService {
	return &statementService{
		repo:    repo,
		storage: store,
		ai:      ai,
		logger:  logger,
	}
}

func (s *statementService) ExtractStatement(ctx context.Context, req *models.UploadRequest) (*models.ExtractionResponse, error) {
	if len(req.File) == 0 {
		return nil, utils.NewBadRequestError("No statement file provided")
	}

	pageCount, err := extractor.ValidatePDF(req.File)
	if err != nil {
		s.logger.Warn("Rejected upload, not a readable PDF", "filename", req.Filename, "error", err)
		return nil, utils.NewBadRequestError("Uploaded file is not a readable PDF")
	}

	s.logger.Info("Starting statement extraction",
		"filename", req.Filename,
		"file_size", len(req.File),
		"page_count", pageCount)

	resp, err := s.ai.GenerateContent(ctx, req.File)
	if err != nil {
		s.logger.Error("Gemini call failed", "error", err, "filename", req.Filename)
		if appErr, ok := err.(*utils.AppError); ok {
			return nil, appErr
		}
		return nil, utils.NewUpstreamError(fmt.Sprintf("AI service call failed: %v", err), nil)
	}

	s.logger.Debug("Gemini response received",
		"keys", payloadKeys(resp.Payload),
		"usage_metadata", resp.UsageMetadata)

	if resp.Candidate == nil {
		rawPreview := utils.Truncate(mustJSON(resp.Payload), salvage.CandidatePreviewLimit)
		s.logger.Error("Gemini returned no candidates", "raw", rawPreview)
		return nil, utils.NewUpstreamError("AI service returned no completion", map[string]any{
			"raw_preview":    rawPreview,
			"usage_metadata": resp.UsageMetadata,
		})
	}

	// Collect from the candidate; if that turns up nothing, fall back to the
	// whole payload, where text parts occasionally land outside the
	// candidate's own substructure.
	pieces := salvage.CollectTextPieces(resp.Candidate)
	if len(pieces) == 0 {
		pieces = salvage.CollectTextPieces(resp.Payload)
	}
	joined := salvage.JoinPieces(pieces)

	s.logger.Info("Collected response text",
		"pieces", len(pieces),
		"joined_length", len(joined))

	result, failure := salvage.Parse(joined)
	if failure != nil {
		failure.PiecesCollected = len(pieces)
		failure.UsageMetadata = resp.UsageMetadata
		failure.CandidatePreview = utils.Truncate(mustJSON(resp.Candidate), salvage.CandidatePreviewLimit)

		s.logger.Error("All JSON recovery strategies failed",
			"parse_error", failure.ParseError,
			"pieces", failure.PiecesCollected,
			"joined_length", len(joined),
			"usage_metadata", resp.UsageMetadata)

		return nil, utils.NewUnprocessableError("Failed to recover statement JSON from AI output", map[string]any{
			"parse_error":       failure.ParseError,
			"raw_preview":       failure.RawPreview,
			"pieces_collected":  failure.PiecesCollected,
			"usage_metadata":    failure.UsageMetadata,
			"candidate_preview": failure.CandidatePreview,
		})
	}

	now := time.Now()
	st := &models.Statement{
		ID:            utils.GenerateID(),
		Filename:      req.Filename,
		FileSize:      int64(len(req.File)),
		PageCount:     pageCount,
		UsageMetadata: resp.UsageMetadata,
		CreatedAt:     now,
		ExtractedAt:   now,
	}
	if info, ok := result["statement_info"].(map[string]any); ok {
		st.StatementInfo = info
	}
	if summary, ok := result["account_summary"].(map[string]any); ok {
		st.AccountSummary = summary
	}
	if txns, ok := result["transactions"].([]any); ok {
		st.Transactions = txns
	}

	st.S3Key = fmt.Sprintf("statements/%s/%s", st.ID, req.Filename)
	if err := s.storage.Upload(ctx, st.S3Key, req.File, "application/pdf"); err != nil {
		s.logger.Error("Failed to archive statement PDF", "error", err, "s3_key", st.S3Key)
		return nil, utils.NewInternalError("Failed to store statement document")
	}

	if err := s.repo.Create(ctx, st); err != nil {
		s.logger.Error("Failed to save statement record", "error", err, "id", st.ID)
		_ = s.storage.Delete(ctx, st.S3Key)
		return nil, utils.NewInternalError("Failed to save statement record")
	}

	s.logger.Info("Statement extracted successfully",
		"id", st.ID,
		"filename", req.Filename,
		"transactions", len(st.Transactions))

	return &models.ExtractionResponse{
		ID:             st.ID,
		Filename:       st.Filename,
		PageCount:      st.PageCount,
		StatementInfo:  st.StatementInfo,
		AccountSummary: st.AccountSummary,
		Transactions:   st.Transactions,
		ExtractedAt:    st.ExtractedAt,
	}, nil
}

func (s *statementService) GetStatement(ctx context.Context, id string) (*models.Statement, error) {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get statement", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve statement")
	}
	if st == nil {
		return nil, utils.NewNotFoundError("Statement not found")
	}

	return st, nil
}

func (s *statementService) DownloadStatement(ctx context.Context, id string) (*models.Statement, []byte, error) {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get statement", "error", err, "id", id)
		return nil, nil, utils.NewInternalError("Failed to retrieve statement")
	}
	if st == nil {
		return nil, nil, utils.NewNotFoundError("Statement not found")
	}

	data, err := s.storage.Download(ctx, st.S3Key)
	if err != nil {
		s.logger.Error("Failed to download statement PDF", "error", err, "s3_key", st.S3Key)
		return nil, nil, utils.NewInternalError("Failed to retrieve statement document")
	}

	return st, data, nil
}

func (s *statementService) ListStatements(ctx context.Context, limit int) ([]*models.Statement, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	statements, err := s.repo.List(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list statements", "error", err)
		return nil, utils.NewInternalError("Failed to list statements")
	}

	return statements, nil
}

func payloadKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	return keys
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
