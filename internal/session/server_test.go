package session

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/ledger-sense/internal/auth"
	"github.com/zombor/ledger-sense/internal/commit"
	"github.com/zombor/ledger-sense/internal/upload"
)

type formFile struct {
	name, mimeType string
	data           []byte
}

func multipartBody(field string, files ...formFile) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, f.name))
		h.Set("Content-Type", f.mimeType)
		part, err := writer.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(f.data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeState(resp *http.Response) State {
	defer resp.Body.Close()
	var st State
	Expect(json.NewDecoder(resp.Body).Decode(&st)).To(Succeed())
	return st
}

var _ = Describe("Server", func() {
	var (
		manager   *Manager
		committer *mockCommitter
		server    *Server
		basicAuth BasicAuth
		ts        *httptest.Server
	)

	setupServer := func() {
		if ts != nil {
			ts.Close()
		}
		deps, c := testDeps()
		committer = c
		manager = NewManagerWithDeps(deps, &mockIDGenerator{ids: []string{"s1"}}, &mockTimeSource{now: time.Now()})
		server = NewServerWithMux(manager, basicAuth, http.NewServeMux())
		ts = httptest.NewServer(server)
	}

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ts.URL+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "token"})
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	createSession := func() State {
		resp := do("POST", "/api/sessions", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		return decodeState(resp)
	}

	addFiles := func(files ...formFile) *http.Response {
		body, ct := multipartBody("files", files...)
		return do("POST", "/api/sessions/s1/files", body, ct)
	}

	BeforeEach(func() {
		basicAuth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ts != nil {
			ts.Close()
			ts = nil
		}
	})

	Describe("health", func() {
		It("should report ok", func() {
			resp := do("GET", "/api/health", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("sessions", func() {
		It("should create an empty session", func() {
			st := createSession()
			Expect(st.ID).To(Equal("s1"))
			Expect(st.Files).To(BeEmpty())
			Expect(st.Rows).To(BeEmpty())
		})

		It("should return 404 for an unknown session", func() {
			resp := do("GET", "/api/sessions/nope", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should delete a session", func() {
			createSession()
			resp := do("DELETE", "/api/sessions/s1", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(manager.Len()).To(Equal(0))
		})
	})

	Describe("files", func() {
		BeforeEach(func() {
			createSession()
		})

		It("should queue valid and invalid files", func() {
			resp := addFiles(
				formFile{"ledger.png", "image/png", []byte("png")},
				formFile{"notes.txt", "text/plain", []byte("txt")},
			)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			st := decodeState(resp)

			Expect(st.Files).To(HaveLen(2))
			Expect(st.Files[0].Status).To(Equal(upload.StatusIdle))
			Expect(st.Files[1].Status).To(Equal(upload.StatusError))
			Expect(st.Files[1].Error).To(Equal("Invalid file type. Only PNG, JPG, and JPEG files are allowed."))
			Expect(st.IdleCount).To(Equal(1))
		})

		It("should accept the single file field", func() {
			body, ct := multipartBody("image", formFile{"ledger.jpg", "image/jpeg", []byte("jpg")})
			resp := do("POST", "/api/sessions/s1/files", body, ct)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(decodeState(resp).Files).To(HaveLen(1))
		})

		It("should reject a request with no files", func() {
			body, ct := multipartBody("files")
			resp := do("POST", "/api/sessions/s1/files", body, ct)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should dismiss one file", func() {
			addFiles(formFile{"a.png", "image/png", []byte("a")}, formFile{"b.png", "image/png", []byte("b")}).Body.Close()

			resp := do("DELETE", "/api/sessions/s1/files/0", nil, "")
			st := decodeState(resp)
			Expect(st.Files).To(HaveLen(1))
			Expect(st.Files[0].Name).To(Equal("b.png"))
		})

		It("should return 404 when dismissing a missing file", func() {
			resp := do("DELETE", "/api/sessions/s1/files/3", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should dismiss all files", func() {
			addFiles(formFile{"a.png", "image/png", []byte("a")}).Body.Close()
			st := decodeState(do("DELETE", "/api/sessions/s1/files", nil, ""))
			Expect(st.Files).To(BeEmpty())
		})

		It("should refuse to resubmit a file that has not failed", func() {
			addFiles(formFile{"a.png", "image/png", []byte("a")}).Body.Close()
			resp := do("POST", "/api/sessions/s1/files/0/resubmit", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("dispatch and reconciliation", func() {
		BeforeEach(func() {
			createSession()
			addFiles(formFile{"ledger.png", "image/png", []byte("png")}).Body.Close()
		})

		It("should upload idle files and fill the table", func() {
			st := decodeState(do("POST", "/api/sessions/s1/dispatch", nil, ""))
			Expect(st.Files[0].Status).To(Equal(upload.StatusSuccess))
			Expect(st.Columns).To(Equal([]string{"OrderID", "Item", "Quantity", "Selling Price"}))
			Expect(st.Rows).To(HaveLen(1))
		})

		It("should edit a cell", func() {
			do("POST", "/api/sessions/s1/dispatch", nil, "").Body.Close()

			resp := do("PATCH", "/api/sessions/s1/rows/0", strings.NewReader(`{"column":"Quantity","value":"3"}`), "application/json")
			st := decodeState(resp)
			Expect(st.Rows[0]["Quantity"]).To(Equal("3"))
		})

		It("should reject edits to an unknown column", func() {
			do("POST", "/api/sessions/s1/dispatch", nil, "").Body.Close()

			resp := do("PATCH", "/api/sessions/s1/rows/0", strings.NewReader(`{"column":"Colour","value":"red"}`), "application/json")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should append a manual row", func() {
			resp := do("POST", "/api/sessions/s1/rows", strings.NewReader(`{"cells":{"Item":"Stapler"}}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(decodeState(resp).Rows).To(HaveLen(1))
		})

		It("should export the table as a workbook", func() {
			do("POST", "/api/sessions/s1/dispatch", nil, "").Body.Close()

			resp := do("GET", "/api/sessions/s1/export.xlsx", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("ledger.xlsx"))
			data, _ := io.ReadAll(resp.Body)
			Expect(data[:2]).To(Equal([]byte("PK")))
		})
	})

	Describe("commit", func() {
		BeforeEach(func() {
			createSession()
			addFiles(formFile{"ledger.png", "image/png", []byte("png")}).Body.Close()
			do("POST", "/api/sessions/s1/dispatch", nil, "").Body.Close()
		})

		It("should commit and clear the session", func() {
			resp := do("POST", "/api/sessions/s1/commit", strings.NewReader(`{"mode":"sales","date":"2026-10-14"}`), "application/json")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Result  commit.Result `json:"result"`
				Session State         `json:"session"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body.Result.Inserted).To(Equal(1))
			Expect(body.Session.Files).To(BeEmpty())
			Expect(body.Session.Rows).To(BeEmpty())
			Expect(committer.cred).To(Equal(auth.Credential("token")))
			Expect(committer.mode).To(Equal(commit.ModeSales))
		})

		It("should return validation errors as 400", func() {
			committer.err = &commit.ValidationError{Row: -1, Err: commit.ErrNoDate}

			resp := do("POST", "/api/sessions/s1/commit", strings.NewReader(`{"mode":"sales"}`), "application/json")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body["error"]).To(Equal("Please select a date before committing."))
		})

		It("should return the generic failure as 502 and keep the rows", func() {
			committer.err = commit.ErrCommitFailed

			resp := do("POST", "/api/sessions/s1/commit", strings.NewReader(`{"date":"2026-10-14"}`), "application/json")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			sess, err := manager.Get("s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Table.Len()).To(Equal(1))
		})

		It("should reject an unknown mode", func() {
			resp := do("POST", "/api/sessions/s1/commit", strings.NewReader(`{"mode":"payroll","date":"2026-10-14"}`), "application/json")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(committer.calls).To(Equal(0))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do("OPTIONS", "/api/sessions", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			basicAuth = BasicAuth{Username: "owner", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp := do("POST", "/api/sessions", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("POST", ts.URL+"/api/sessions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("owner:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})

		It("should leave health open", func() {
			resp := do("GET", "/api/health", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
