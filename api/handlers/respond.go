package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

// writeError reports err with the status its kind maps to
func writeError(w http.ResponseWriter, message string, err error) {
	config.ErrorStatus(message, apierrors.StatusCode(err), w, err)
}

// decode reads a JSON body into v. Malformed bodies are validation errors.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apierrors.Validation("body", "is required")
		}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return apierrors.Validation(te.Field, "has the wrong type")
		}
		return apierrors.Validation("body", "is not valid JSON")
	}
	return nil
}

// objectID parses the named path variable
func objectID(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)[name])
	if err != nil {
		return primitive.NilObjectID, apierrors.Validation(name, "must be a valid id")
	}
	return id, nil
}

// caller is the authenticated principal. The auth middleware guarantees it
// on every protected route.
func caller(r *http.Request) models.Principal {
	p, ok := api.PrincipalFrom(r.Context())
	if !ok {
		zap.S().Errorw("handler reached without a principal", "path", r.URL.Path)
	}
	return p
}

func queryInt(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apierrors.Validation(name, "must be a non-negative integer")
	}
	return n, nil
}

func queryFloat(r *http.Request, name string) (float64, bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, apierrors.Validation(name, "must be a number")
	}
	return f, true, nil
}

// pageFrom reads page and limit query parameters
func pageFrom(r *http.Request) (databases.Page, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return databases.Page{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return databases.Page{}, err
	}
	return databases.Page{Page: page, Limit: limit}.Normalize(), nil
}

// optionalObjectID parses an optional id query parameter
func optionalObjectID(r *http.Request, name string) (*primitive.ObjectID, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(v)
	if err != nil {
		return nil, apierrors.Validation(name, "must be a valid id")
	}
	return &id, nil
}
