package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	const token = "sesame"

	var (
		db          *mockDB
		uploads     *mockStorage
		tmp         *LocalStorage
		scanner     *mockScanner
		service     *Service
		training    *TrainingSet
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		uploads = newMockStorage()
		scanner = newMockScanner()

		var err error
		tmp, err = NewLocalStorage(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		training, err = NewTrainingSet(GinkgoT().TempDir(), db, tmp)
		Expect(err).NotTo(HaveOccurred())

		service = NewServiceWithDeps(db, scanner, uploads, tmp,
			&mockIDGenerator{id: "upload-id-123"},
			&mockTimeSource{now: time.Date(2020, 9, 25, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, training, token, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		ghttpServer.RouteToHandler("POST", "/api/upload", server.ServeHTTP)
		ghttpServer.RouteToHandler("POST", "/api/training", server.ServeHTTP)
		ghttpServer.RouteToHandler("GET", "/logout", server.ServeHTTP)
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	multipartBody := func(filename string, content []byte) (*bytes.Buffer, string) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).NotTo(HaveOccurred())
		return body, writer.FormDataContentType()
	}

	uploadRequest := func(url, filename string) *http.Request {
		body, contentType := multipartBody(filename, []byte("fake image data"))
		req, err := http.NewRequest("POST", url, body)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", contentType)
		return req
	}

	Describe("admission", func() {
		When("no credential is presented", func() {
			It("rejects with 403", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/upload", "receipt.png")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			})

			It("responds with a generic reason", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/upload", "receipt.png")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["error"]).To(Equal("could not validate credentials"))
			})
		})

		When("the token is presented as a query parameter", func() {
			It("admits the request", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/upload?access_token="+token, "receipt.png")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("the token is presented as a header", func() {
			It("admits the request", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/upload", "receipt.png")
				req.Header.Set(TokenName, token)
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("the token is presented as a cookie", func() {
			It("admits the request", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/upload", "receipt.png")
				req.AddCookie(&http.Cookie{Name: TokenName, Value: token})
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("a wrong token is presented on every channel", func() {
			It("rejects with 403", func() {
				req := uploadRequest(ghttpServer.URL()+"/api/upload?access_token=wrong", "receipt.png")
				req.Header.Set(TokenName, "wrong")
				req.AddCookie(&http.Cookie{Name: TokenName, Value: "wrong"})
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			})
		})
	})

	Describe("handleUpload", func() {
		doUpload := func(filename string) *http.Response {
			req := uploadRequest(ghttpServer.URL()+"/api/upload", filename)
			req.Header.Set(TokenName, token)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("a valid image is uploaded", func() {
			It("returns the recognized record", func() {
				resp := doUpload("receipt.png")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var record ReceiptRecord
				Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())
				Expect(record.UploadID).To(Equal("upload-id-123"))
				Expect(record.StoreName).To(Equal("Aldi"))
				Expect(record.Category).To(Equal("grocery"))
				Expect(record.Items).To(HaveLen(2))
			})

			It("sets Content-Type to application/json", func() {
				resp := doUpload("receipt.png")
				defer resp.Body.Close()
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			})
		})

		When("the filename has a disallowed extension", func() {
			It("rejects with 415", func() {
				resp := doUpload("receipt.txt")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
			})
		})

		When("no file part is supplied", func() {
			It("rejects with 415", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("note", "no file here")).To(Succeed())
				Expect(writer.Close()).NotTo(HaveOccurred())

				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/upload", body)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", writer.FormDataContentType())
				req.Header.Set(TokenName, token)

				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
			})
		})

		When("the scanner fails", func() {
			BeforeEach(func() {
				scanner.scanErr = io.ErrUnexpectedEOF
			})

			It("responds with 500", func() {
				resp := doUpload("receipt.png")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleTraining", func() {
		postTraining := func(payload string) *http.Response {
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/training", bytes.NewBufferString(payload))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(TokenName, token)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("a pending upload exists", func() {
			BeforeEach(func() {
				_, err := tmp.Save("upload-id-123.png", []byte("pending"))
				Expect(err).NotTo(HaveOccurred())
				db.uploads["upload-id-123"] = &UploadRecord{
					ID:      "upload-id-123",
					TmpPath: tmp.Path("upload-id-123.png"),
				}
			})

			It("records the example and responds with success", func() {
				resp := postTraining(`{"company":"Aldi","date":"2020-09-25","total":"15.10","upload_id":"upload-id-123"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(MatchJSON(`"success"`))
			})
		})

		When("the payload is not valid JSON", func() {
			It("rejects with 415", func() {
				resp := postTraining(`not json`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
			})
		})

		When("required fields are missing", func() {
			It("rejects with 415", func() {
				resp := postTraining(`{"company":"Aldi"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
			})
		})
	})

	Describe("handleLogout", func() {
		var client *http.Client

		BeforeEach(func() {
			client = &http.Client{
				CheckRedirect: func(req *http.Request, via []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}
		})

		logout := func() *http.Response {
			resp, err := client.Get(ghttpServer.URL() + "/logout")
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("requires no credential", func() {
			resp := logout()
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusFound))
		})

		It("redirects to the root", func() {
			resp := logout()
			defer resp.Body.Close()
			Expect(resp.Header.Get("Location")).To(Equal("/"))
		})

		It("clears the credential cookie", func() {
			resp := logout()
			defer resp.Body.Close()
			cookies := resp.Cookies()
			Expect(cookies).To(HaveLen(1))
			Expect(cookies[0].Name).To(Equal(TokenName))
			Expect(cookies[0].Value).To(BeEmpty())
			Expect(cookies[0].MaxAge).To(BeNumerically("<", 0))
		})

		It("is idempotent", func() {
			first := logout()
			first.Body.Close()
			second := logout()
			defer second.Body.Close()
			Expect(second.StatusCode).To(Equal(http.StatusFound))
			Expect(second.Header.Get("Location")).To(Equal("/"))
			Expect(second.Cookies()).To(HaveLen(1))
		})
	})
})
