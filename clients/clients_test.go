package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/config"
)

func isUnavailable(err error) bool {
	var ue *apierrors.UpstreamUnavailableError
	return errors.As(err, &ue)
}

func TestMLClientPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "road.jpg", hdr.Filename)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":       true,
			"category":      "ROAD_POTHOLE",
			"category_name": "Road Pothole",
			"confidence":    91.5,
			"department":    "Public Works Department",
			"priority":      "high",
			"all_predictions": []map[string]interface{}{
				{"category": "ROAD_POTHOLE", "confidence": 91.5},
			},
		})
	}))
	defer srv.Close()

	c := NewMLClient(config.MLConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	p, err := c.Predict(context.Background(), "road.jpg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "ROAD_POTHOLE", p.Category)
	assert.Equal(t, 91.5, p.Confidence)
	assert.Len(t, p.AllPredictions, 1)
}

func TestMLClientPredictUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "model not loaded"}`))
	}))
	defer srv.Close()

	_, err := NewMLClient(config.MLConfig{BaseURL: srv.URL, Timeout: time.Second}).Predict(context.Background(), "a.png", []byte("x"))
	assert.True(t, isUnavailable(err))
}

func TestMLClientPredictConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewMLClient(config.MLConfig{BaseURL: url, Timeout: time.Second}).Predict(context.Background(), "a.png", []byte("x"))
	assert.True(t, isUnavailable(err))
}

func TestMLClientPredictTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewMLClient(config.MLConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}).Predict(context.Background(), "a.png", []byte("x"))
	assert.True(t, isUnavailable(err))
}

func TestTextGenClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 200, req.MaxTokens)
		assert.Contains(t, req.Messages[1].Content, "Road Pothole")

		w.Write([]byte("{\"choices\":[{\"message\":{\"role\":\"assistant\",\"content\":\"```json\\n{\\\"title\\\":\\\"Deep pothole on MG Road\\\",\\\"description\\\":\\\"A large pothole.\\\"}\\n```\"}}]}"))
	}))
	defer srv.Close()

	c := NewTextGenClient(config.TextGenConfig{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL, Timeout: time.Second})
	out, err := c.Generate(context.Background(), IssuePrompt{Category: "Road Pothole", Confidence: 90, Department: "Public Works Department", Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, "Deep pothole on MG Road", out.Title)
	assert.Equal(t, "A large pothole.", out.Description)
}

func TestTextGenClientWithoutKey(t *testing.T) {
	c := NewTextGenClient(config.TextGenConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := c.Generate(context.Background(), IssuePrompt{Category: "Garbage"})
	assert.True(t, isUnavailable(err))
}

func TestTextGenClientMalformedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Sure! Here is a title: Pothole"}}]}`))
	}))
	defer srv.Close()

	c := NewTextGenClient(config.TextGenConfig{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Generate(context.Background(), IssuePrompt{Category: "Garbage"})
	assert.True(t, isUnavailable(err))
}

func TestParseGeneratedText(t *testing.T) {
	out, err := ParseGeneratedText(`{"title":"Broken light","description":"Dark street."}`)
	require.NoError(t, err)
	assert.Equal(t, "Broken light", out.Title)

	_, err = ParseGeneratedText(`{"title":"","description":"x"}`)
	assert.Error(t, err)
}

func TestGeocodeClientReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "18.520400", r.URL.Query().Get("lat"))
		w.Write([]byte(`{"display_name":"Shivajinagar, Pune, Maharashtra","address":{"state":"Maharashtra","state_district":"Pune"}}`))
	}))
	defer srv.Close()

	p, err := NewGeocodeClient(config.GeocodingConfig{URL: srv.URL, Timeout: time.Second}).Reverse(context.Background(), 18.5204, 73.8567)
	require.NoError(t, err)
	assert.Equal(t, "Maharashtra", p.State)
	assert.Equal(t, "Pune", p.District)
	assert.Equal(t, "Shivajinagar, Pune, Maharashtra", p.Address)
}

func TestGeocodeClientReverseNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	_, err := NewGeocodeClient(config.GeocodingConfig{URL: srv.URL, Timeout: time.Second}).Reverse(context.Background(), 0, 0)
	assert.True(t, isUnavailable(err))
}
