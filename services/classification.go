package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/citizenvoice/citizenvoice-api/clients"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// Predictor classifies one image
type Predictor interface {
	Predict(ctx context.Context, filename string, image []byte) (*clients.MLPrediction, error)
}

// TextGenerator writes an issue title and description from a classification
type TextGenerator interface {
	Generate(ctx context.Context, p clients.IssuePrompt) (*clients.GeneratedText, error)
}

// ImageInput is one uploaded image
type ImageInput struct {
	Filename string
	Data     []byte
}

// maxParallelPredictions bounds concurrent calls to the classifier
const maxParallelPredictions = 3

// MaxClassifyImages is the most images accepted in one classify request
const MaxClassifyImages = 5

// defaultDepartment handles anything without a dedicated department
const defaultDepartment = "General Municipal Department"

var departments = map[models.IssueCategory]string{
	models.CategoryPothole:     "Public Works Department",
	models.CategoryGarbage:     "Sanitation Department",
	models.CategoryStreetlight: "Electrical Department",
	models.CategoryWater:       "Water Supply Department",
	models.CategoryTraffic:     "Traffic Police Department",
	models.CategoryNoise:       "Environmental Department",
	models.CategorySafety:      "Police Department",
	models.CategoryOther:       defaultDepartment,
}

var mlCategories = map[string]models.IssueCategory{
	"ROAD_POTHOLE":    models.CategoryPothole,
	"GARBAGE":         models.CategoryGarbage,
	"STREETLIGHT":     models.CategoryStreetlight,
	"ROAD_SIGNS":      models.CategoryTraffic,
	"ILLEGAL_PARKING": models.CategoryTraffic,
}

// DepartmentFor returns the department that handles category
func DepartmentFor(category models.IssueCategory) string {
	if d, ok := departments[category]; ok {
		return d
	}
	return defaultDepartment
}

// MapMLCategory converts a classifier label into an issue category
func MapMLCategory(label string) models.IssueCategory {
	if c, ok := mlCategories[strings.ToUpper(strings.TrimSpace(label))]; ok {
		return c
	}
	return models.CategoryOther
}

// FallbackClassification is returned whenever no image could be classified
func FallbackClassification() models.Classification {
	return models.Classification{
		Success:    false,
		Category:   models.CategoryOther,
		Confidence: 0,
		Priority:   models.PriorityMedium,
		Department: defaultDepartment,
		Fallback:   true,
	}
}

// ClassificationService suggests category, priority and wording for issue photos
type ClassificationService struct {
	Predictor Predictor
	TextGen   TextGenerator
}

// NewClassificationService wires the classifier and text generator
func NewClassificationService(p Predictor, t TextGenerator) *ClassificationService {
	return &ClassificationService{Predictor: p, TextGen: t}
}

// Classify sends every image to the classifier and keeps the most confident
// successful answer. It never fails: without any answer it falls back.
func (s *ClassificationService) Classify(ctx context.Context, images []ImageInput) models.Classification {
	results := make([]*clients.MLPrediction, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPredictions)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			pred, err := s.Predictor.Predict(gctx, img.Filename, img.Data)
			if err != nil {
				zap.S().Warnw("image classification failed", "file", img.Filename, "error", err)
				return nil
			}
			results[i] = pred
			return nil
		})
	}
	_ = g.Wait()

	var best *clients.MLPrediction
	for _, r := range results {
		if r != nil && r.Success && (best == nil || r.Confidence > best.Confidence) {
			best = r
		}
	}
	if best == nil {
		return FallbackClassification()
	}
	return fromPrediction(best)
}

func fromPrediction(p *clients.MLPrediction) models.Classification {
	category := MapMLCategory(p.Category)
	priority := models.Priority(strings.ToLower(p.Priority))
	if !priority.Valid() {
		priority = models.PriorityMedium
	}
	preds := make([]models.Prediction, len(p.AllPredictions))
	for i, ap := range p.AllPredictions {
		preds[i] = models.Prediction{Category: ap.Category, Confidence: ap.Confidence}
	}
	return models.Classification{
		Success:        true,
		Category:       category,
		CategoryName:   p.CategoryName,
		MLCategory:     p.Category,
		Confidence:     p.Confidence,
		Priority:       priority,
		Department:     DepartmentFor(category),
		AllPredictions: preds,
	}
}

// DescribeInput is what the text generator is told
type DescribeInput struct {
	Category   string          `json:"category" validate:"required,max=100"`
	Confidence float64         `json:"confidence" validate:"gte=0,lte=100"`
	Department string          `json:"department" validate:"max=200"`
	Priority   models.Priority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// Describe generates a title and description. It falls back to a template
// when the generator is unavailable.
func (s *ClassificationService) Describe(ctx context.Context, in DescribeInput) (*models.IssueText, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	department := in.Department
	if department == "" {
		department = DepartmentFor(models.IssueCategory(strings.ToLower(in.Category)))
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	if s.TextGen != nil {
		text, err := s.TextGen.Generate(ctx, clients.IssuePrompt{
			Category:   in.Category,
			Confidence: in.Confidence,
			Department: department,
			Priority:   string(priority),
		})
		if err == nil {
			return &models.IssueText{Title: text.Title, Description: text.Description}, nil
		}
		zap.S().Warnw("text generation failed, using template", "category", in.Category, "error", err)
	}
	fallback := FallbackText(in.Category, department)
	return &fallback, nil
}

// FallbackText is the templated title and description for a category
func FallbackText(category, department string) models.IssueText {
	name := formatCategory(category)
	return models.IssueText{
		Title:       name + " Issue Reported",
		Description: fmt.Sprintf("A %s issue has been detected in this area. This requires attention from the %s.", strings.ToLower(name), department),
		Fallback:    true,
	}
}

// formatCategory turns ROAD_POTHOLE into Road Pothole
func formatCategory(category string) string {
	words := strings.Fields(strings.ReplaceAll(category, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		words[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
