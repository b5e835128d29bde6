package handlers

import (
	"context"
	"io"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/scan"
	"github.com/CzarCx/qr-brain/internal/service"
)

// ScanService is the workflow surface exposed over HTTP, implemented by *service.Service
type ScanService interface {
	StartSession(req service.StartSessionRequest) (scan.View, error)
	GetSession(id string) (scan.View, error)
	ClearSession(id string) (scan.View, error)
	EndSession(id string) error
	ProcessScan(ctx context.Context, id string, req service.ScanRequest) (*service.ScanResult, error)
	EditItem(id, code string, minutes int) (scan.View, error)
	RemoveItem(id, code string) (scan.View, error)
	CommitToPerson(ctx context.Context, id string, req service.AssignRequest) (*service.CommitResult, error)
	ProgramLote(ctx context.Context, id string, req service.ProgramRequest) (*service.CommitResult, error)
	QualifyBatch(ctx context.Context, id string, req service.QualifyRequest) (*service.BatchResult, error)
	LoadLote(ctx context.Context, id, lote string) (*service.LoadResult, error)
	Deliver(ctx context.Context, id string, req service.DeliverRequest) (*service.BatchResult, error)
	MarkPending(ctx context.Context, id string) (*service.BatchResult, error)
	SubmitScans(ctx context.Context, id string) (int, error)
	Export(ctx context.Context, id string, upload bool) (*service.ExportResult, error)

	Accept(ctx context.Context, code string, req service.AcceptRequest) error
	Report(ctx context.Context, code string, req service.ReportRequest) error
	Cancel(ctx context.Context, code string) error
	Unassign(ctx context.Context, code string) error
	TouchPrintDate(ctx context.Context, code string) error
	VerifyCut(ctx context.Context, codeI string, req service.CutRequest) (*service.CutResult, error)

	ProgrammedAssignees(ctx context.Context) ([]string, error)
	ProgrammedLotes(ctx context.Context) ([]string, error)
	ListProgrammed(ctx context.Context, name, lote string) ([]models.ProgrammedItem, error)
	AssignProgrammed(ctx context.Context, req service.AssignProgrammedRequest) (*service.CommitResult, error)
	LoteView(ctx context.Context) ([]models.LoteSummary, error)
	DeleteLote(ctx context.Context, lote string) (int64, error)

	ImportDeliveries(ctx context.Context, operator, filename string, r io.Reader) (*service.ImportStats, error)
	NotFoundCSV(codes []string) ([]byte, error)

	ListPersonnel(ctx context.Context, role string) ([]models.Personnel, error)
	RegisterPersonnel(ctx context.Context, req service.RegisterPersonnelRequest) (*models.Personnel, error)
	ReportReasons(ctx context.Context) ([]models.ReportReason, error)
	SearchScans(ctx context.Context, query string, size int) ([]models.ScanLog, error)
}

var _ ScanService = (*service.Service)(nil)
