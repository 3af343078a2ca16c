package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cldapi "github.com/cloudinary/cloudinary-go/v2/api"

	"github.com/citizenvoice/citizenvoice-api/config"
)

// Cloudinary signs direct browser uploads of issue photos and work proof
type Cloudinary struct {
	Config config.CloudinaryConfig
	Now    func() time.Time
}

type signatureResponse struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	Folder    string `json:"folder"`
	APIKey    string `json:"apiKey"`
	CloudName string `json:"cloudName"`
}

// GenerateSignatureHandler returns a signature the client passes to the
// upload endpoint together with the same timestamp and folder.
func (c Cloudinary) GenerateSignatureHandler(w http.ResponseWriter, r *http.Request) {
	if c.Config.APISecret == "" {
		config.ErrorStatus("uploads are not configured", http.StatusServiceUnavailable, w, errors.New("missing cloudinary secret"))
		return
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	ts := now().Unix()

	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(ts, 10))
	params.Set("folder", c.Config.UploadFolder)

	sig, err := cldapi.SignParameters(params, c.Config.APISecret)
	if err != nil {
		config.ErrorStatus("failed to sign upload", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, signatureResponse{
		Signature: sig,
		Timestamp: ts,
		Folder:    c.Config.UploadFolder,
		APIKey:    c.Config.APIKey,
		CloudName: c.Config.CloudName,
	})
}
