package common

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Paths     PathsConfig
	Naming    NamingConfig
	OCR       OCRConfig
	Signature SignatureConfig
	Server    ServerConfig
}

// PathsConfig holds the filesystem layout the pipeline reads and writes.
type PathsConfig struct {
	InputRoot   string
	ResultsRoot string
	RecordsRoot string
	UploadsRoot string
	ExcelPath   string
	RunDBPath   string
}

// NamingConfig holds the institutional codes used in canonical filenames.
type NamingConfig struct {
	AcademicYear string
	ProvinceCode string
	UnitCode     string
	MajorCode    string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract string
	Pdftoppm  string
	Language  string
	DPI       int
	PageCount int
}

// SignatureConfig holds signature-detection configuration.
type SignatureConfig struct {
	Threshold float64
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			InputRoot:   getEnv("INPUT_ROOT", "./input"),
			ResultsRoot: getEnv("RESULTS_ROOT", "./results"),
			RecordsRoot: getEnv("RECORDS_ROOT", "./recognition_results"),
			UploadsRoot: getEnv("UPLOADS_ROOT", "./uploads"),
			ExcelPath:   getEnv("EXCEL_PATH", ""),
			RunDBPath:   getEnv("RUN_DB_PATH", ""),
		},
		Naming: NamingConfig{
			AcademicYear: getEnv("ACADEMIC_YEAR", "2324"),
			ProvinceCode: getEnv("PROVINCE_CODE", "44"),
			UnitCode:     getEnv("UNIT_CODE", "14655"),
			MajorCode:    getEnv("MAJOR_CODE", "080901"),
		},
		OCR: OCRConfig{
			Tesseract: getEnv("TESSERACT", "tesseract"),
			Pdftoppm:  getEnv("PDFTOPPM", "pdftoppm"),
			Language:  getEnv("OCR_LANG", "chi_sim"),
			DPI:       getEnvAsInt("OCR_DPI", 150),
			PageCount: getEnvAsInt("OCR_PAGE_COUNT", 2),
		},
		Signature: SignatureConfig{
			Threshold: getEnvAsFloat64("SIGNATURE_THRESHOLD", 0.001),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":5000"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Paths.ExcelPath == "" {
		return NewAppError("CONFIG_ERROR", "EXCEL_PATH is required", ErrInvalidInput)
	}
	if c.Naming.AcademicYear == "" || c.Naming.ProvinceCode == "" ||
		c.Naming.UnitCode == "" || c.Naming.MajorCode == "" {
		return NewAppError("CONFIG_ERROR", "naming codes must not be empty", ErrInvalidInput)
	}
	if c.OCR.PageCount < 1 {
		return NewAppError("CONFIG_ERROR", "OCR_PAGE_COUNT must be at least 1", ErrInvalidInput)
	}
	return nil
}
