package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

var validate = validator.New()

type QueryParams struct {
	Query string `query:"query" json:"query" validate:"required"`
}

type IndexParams struct {
	Locator string `json:"locator" validate:"required"`
	Kind    string `json:"kind" validate:"required,oneof=pdf text html url directory"`
}

type FileParams struct {
	FilePath string `json:"filePath" validate:"required"`
}

type URLParams struct {
	URL string `json:"url" validate:"required,url"`
}

type DirectoryParams struct {
	DirectoryPath string `json:"directoryPath" validate:"required"`
}

type CompleteCodeParams struct {
	Context  string `json:"context" validate:"required"`
	Language string `json:"language" validate:"required"`
}

type SuggestParams struct {
	Code     string `json:"code" validate:"required"`
	Language string `json:"language" validate:"required"`
}

type GenerateCodeParams struct {
	Description string `json:"description" validate:"required"`
	Language    string `json:"language" validate:"required"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func validateStruct(params any) map[string]string {
	if err := validate.Struct(params); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *QueryParams) Validate() map[string]string        { return validateStruct(params) }
func (params *IndexParams) Validate() map[string]string        { return validateStruct(params) }
func (params *FileParams) Validate() map[string]string         { return validateStruct(params) }
func (params *URLParams) Validate() map[string]string          { return validateStruct(params) }
func (params *DirectoryParams) Validate() map[string]string    { return validateStruct(params) }
func (params *CompleteCodeParams) Validate() map[string]string { return validateStruct(params) }
func (params *SuggestParams) Validate() map[string]string      { return validateStruct(params) }
func (params *GenerateCodeParams) Validate() map[string]string { return validateStruct(params) }

type IndexResponse struct {
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

type ResultResponse struct {
	Result string `json:"result"`
}

type SearchResponse struct {
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type WebSearchResponse struct {
	Answer        string    `json:"answer"`
	LowConfidence bool      `json:"low_confidence"`
	WebSearchUsed bool      `json:"web_search_used"`
	States        []string  `json:"states"`
	Timestamp     time.Time `json:"timestamp"`
}

type Source struct {
	ChunkID   string  `json:"chunk_id"`
	Title     string  `json:"title"`
	Source    string  `json:"source"`
	ChunkText string  `json:"chunk_text"`
	Distance  float64 `json:"distance"`
}
