package models

import (
	"time"

	"gorm.io/gorm"
)

// Status values carried by assignment rows
const (
	StatusAssigned       = "ASIGNADO"
	StatusQualified      = "CALIFICADO"
	StatusReported       = "REPORTADO"
	StatusPendingQualify = "POR CALIFICAR"
	StatusProgrammed     = "PROGRAMADO"
	StatusDelivered      = "ENTREGADO"
	StatusCancelled      = "CANCELADO"
)

// Personnel roles
const (
	RoleBarra     = "barra"
	RoleEntrega   = "entrega"
	RoleOperativo = "operativo"
	RoleQuality   = "Control de calidad"
)

// Roles lists every accepted personnel role
var Roles = []string{RoleBarra, RoleEntrega, RoleOperativo, RoleQuality}

// Assignment is a label assigned to a staff member (table "personal")
type Assignment struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Code         string     `gorm:"column:code;uniqueIndex;not null" json:"code"`
	Name         *string    `gorm:"column:name;index" json:"name"`
	NameInc      *string    `gorm:"column:name_inc" json:"name_inc"`
	Place        *string    `gorm:"column:place" json:"place"`
	SKU          *string    `gorm:"column:sku;index" json:"sku"`
	Product      *string    `gorm:"column:product" json:"product"`
	Quantity     *int       `gorm:"column:quantity" json:"quantity"`
	Organization *string    `gorm:"column:organization" json:"organization"`
	SalesNum     *int64     `gorm:"column:sales_num" json:"sales_num"`
	Status       string     `gorm:"column:status;index" json:"status"`
	Details      *string    `gorm:"column:details" json:"details"`
	Date         *time.Time `gorm:"column:date" json:"date"`
	DateCal      *time.Time `gorm:"column:date_cal" json:"date_cal"`
	DateEntre    *time.Time `gorm:"column:date_entre" json:"date_entre"`
	DateIni      *time.Time `gorm:"column:date_ini" json:"date_ini"`
	DateEsti     *time.Time `gorm:"column:date_esti" json:"date_esti"`
	EstiTime     *int       `gorm:"column:esti_time" json:"esti_time"`
	DeliDate     *string    `gorm:"column:deli_date" json:"deli_date"`
	Lote         *string    `gorm:"column:lote;index" json:"lote"`
	DriverName   *string    `gorm:"column:driver_name" json:"driver_name"`
	DriverPlate  *string    `gorm:"column:driver_plate" json:"driver_plate"`
}

// TableName maps Assignment onto the legacy table name
func (Assignment) TableName() string {
	return "personal"
}

// ProgrammedItem is a label scheduled ahead of time under a lote (table "personal_prog")
type ProgrammedItem struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Code         string     `gorm:"column:code;index;not null" json:"code"`
	Name         *string    `gorm:"column:name;index" json:"name"`
	NameInc      *string    `gorm:"column:name_inc" json:"name_inc"`
	Place        *string    `gorm:"column:place" json:"place"`
	SKU          *string    `gorm:"column:sku" json:"sku"`
	Product      *string    `gorm:"column:product" json:"product"`
	Quantity     *int       `gorm:"column:quantity" json:"quantity"`
	Organization *string    `gorm:"column:organization" json:"organization"`
	SalesNum     *int64     `gorm:"column:sales_num" json:"sales_num"`
	Status       string     `gorm:"column:status" json:"status"`
	Date         *time.Time `gorm:"column:date" json:"date"`
	DateIni      *time.Time `gorm:"column:date_ini" json:"date_ini"`
	DateEsti     *time.Time `gorm:"column:date_esti" json:"date_esti"`
	EstiTime     *int       `gorm:"column:esti_time" json:"esti_time"`
	DeliDate     *string    `gorm:"column:deli_date" json:"deli_date"`
	LoteP        *string    `gorm:"column:lote_p;index" json:"lote_p"`
}

// TableName maps ProgrammedItem onto the legacy table name
func (ProgrammedItem) TableName() string {
	return "personal_prog"
}

// Label is a printed label definition in the labels store (table "etiquetas_i")
type Label struct {
	Code         string     `gorm:"column:code;primaryKey" json:"code"`
	CodeI        *string    `gorm:"column:code_i;index" json:"code_i"`
	SKU          *string    `gorm:"column:sku" json:"sku"`
	Product      *string    `gorm:"column:product" json:"product"`
	Quantity     *int       `gorm:"column:quantity" json:"quantity"`
	Organization *string    `gorm:"column:organization" json:"organization"`
	SalesNum     *int64     `gorm:"column:sales_num" json:"sales_num"`
	DeliDate     *string    `gorm:"column:deli_date" json:"deli_date"`
	ImpDate      *time.Time `gorm:"column:imp_date" json:"imp_date"`
}

// TableName maps Label onto the legacy table name
func (Label) TableName() string {
	return "etiquetas_i"
}

// CutRecord tracks the corte step for a cut code (table "v_code")
type CutRecord struct {
	CodeI          string     `gorm:"column:code_i;primaryKey" json:"code_i"`
	CorteEtiquetas *time.Time `gorm:"column:corte_etiquetas" json:"corte_etiquetas"`
	PersonalBar    *string    `gorm:"column:personal_bar" json:"personal_bar"`
}

// TableName maps CutRecord onto the legacy table name
func (CutRecord) TableName() string {
	return "v_code"
}

// Personnel is a staff member available for selection (table "personal_name")
type Personnel struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Name         string  `gorm:"column:name;not null" json:"name"`
	Rol          string  `gorm:"column:rol" json:"rol"`
	Organization *string `gorm:"column:organization" json:"organization"`
}

// TableName maps Personnel onto the legacy table name
func (Personnel) TableName() string {
	return "personal_name"
}

// ScanLog is a submitted scan event (table "escaneos")
type ScanLog struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Codigo       string `gorm:"column:codigo" json:"codigo"`
	FechaEscaneo string `gorm:"column:fecha_escaneo" json:"fecha_escaneo"`
	HoraEscaneo  string `gorm:"column:hora_escaneo" json:"hora_escaneo"`
	Encargado    string `gorm:"column:encargado" json:"encargado"`
	Area         string `gorm:"column:area" json:"area"`
	EstiTime     *int   `gorm:"column:esti_time" json:"esti_time"`
}

// TableName maps ScanLog onto the legacy table name
func (ScanLog) TableName() string {
	return "escaneos"
}

// KPI is a productivity row written after each batch operation (table "kpis")
type KPI struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Quantity  int       `gorm:"column:quantity" json:"quantity"`
	Time      string    `gorm:"column:time" json:"time"`
	CsvFile   *string   `gorm:"column:csv_file" json:"csv_file,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName maps KPI onto the legacy table name
func (KPI) TableName() string {
	return "kpis"
}

// ReportReason is a selectable reason when reporting a package (table "reports")
type ReportReason struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	TReport string `gorm:"column:t_report" json:"t_report"`
}

// TableName maps ReportReason onto the legacy table name
func (ReportReason) TableName() string {
	return "reports"
}

// LoteSummary is one row of the aggregated programmed-lotes view
type LoteSummary struct {
	LoteP         string    `json:"lote_p"`
	NameInc       string    `json:"name_inc"`
	Date          time.Time `json:"date"`
	Count         int       `json:"count"`
	TotalEstiTime int       `json:"total_esti_time"`
}

// StatusCount is an aggregate used by the daily report
type StatusCount struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// SetupModels migrates the primary store tables
func SetupModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Assignment{},
		&ProgrammedItem{},
		&Personnel{},
		&ScanLog{},
		&KPI{},
		&ReportReason{},
	)
}

// SetupLabelModels migrates the labels store tables
func SetupLabelModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Label{},
		&CutRecord{},
	)
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
