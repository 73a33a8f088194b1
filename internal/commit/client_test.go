package commit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/ledger-sense/internal/auth"
	"github.com/zombor/ledger-sense/internal/reconcile"
)

var _ = Describe("Client", func() {
	var (
		server *ghttp.Server
		client *Client
		cc     Target
		rows   []reconcile.Row
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		client = NewClient(server.URL(), DefaultMapping())
		cc = Target{Date: "2026-10-14", User: &auth.User{ID: "7"}}
		rows = []reconcile.Row{{"OrderID": "1", "Item": "Pen", "Quantity": "2", "Selling Price": "10"}}
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Commit", func() {
		It("should post all rows in one sales request", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", SalesPath),
				ghttp.VerifyHeaderKV("Authorization", "Bearer token-123"),
				func(w http.ResponseWriter, r *http.Request) {
					body, _ := io.ReadAll(r.Body)
					Expect(body).To(MatchJSON(`{"rows":[{"UserId":7,"date":"2026-10-14","orderID":"1","item":"Pen","quantity":"2","sellingPrice":"10"}]}`))
					c, err := r.Cookie(auth.CookieName)
					Expect(err).NotTo(HaveOccurred())
					Expect(c.Value).To(Equal("token-123"))
				},
				ghttp.RespondWith(http.StatusCreated, `{"message":"Rows stored successfully","data":[{"id":1}]}`),
			))

			res, err := client.Commit(context.Background(), rows, ModeSales, cc, auth.Credential("token-123"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Inserted).To(Equal(1))
			Expect(res.Message).To(Equal("Rows stored successfully"))
		})

		It("should post inventory rows to the inventory endpoint", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", InventoryPath),
				func(w http.ResponseWriter, r *http.Request) {
					var body struct {
						Rows []map[string]any `json:"rows"`
					}
					Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
					Expect(body.Rows).To(HaveLen(1))
					Expect(body.Rows[0]).To(HaveKeyWithValue("productName", "Rice"))
					Expect(body.Rows[0]).To(HaveKeyWithValue("unitPrice", "12.5"))
				},
				ghttp.RespondWith(http.StatusCreated, `{"message":"Rows stored successfully"}`),
			))

			inventory := []reconcile.Row{{"Product": "Rice", "Price": "12.5", "Stock": "3"}}
			res, err := client.Commit(context.Background(), inventory, ModeInventory, cc, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Inserted).To(Equal(1))
		})

		It("should send a non-canonical numeric user id as a string", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", SalesPath),
				ghttp.VerifyJSON(`{"rows":[{"UserId":"007","date":"2026-10-14","orderID":"1","item":"Pen","quantity":"2","sellingPrice":"10"}]}`),
				ghttp.RespondWith(http.StatusCreated, `{"message":"Rows stored successfully","data":[{"id":1}]}`),
			))

			cc.User = &auth.User{ID: "007"}
			res, err := client.Commit(context.Background(), rows, ModeSales, cc, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Inserted).To(Equal(1))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})

		It("should still insert when the storage response is not JSON", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusCreated, `stored`))

			res, err := client.Commit(context.Background(), rows, ModeSales, cc, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Inserted).To(Equal(1))
			Expect(res.Message).To(BeEmpty())
		})

		It("should send nothing when any row is incomplete", func() {
			rows = append(rows, reconcile.Row{"OrderID": "2", "Item": "Book", "Quantity": "", "Selling Price": "5"})

			_, err := client.Commit(context.Background(), rows, ModeSales, cc, "")
			var vErr *ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})

		It("should send nothing without a date", func() {
			cc.Date = ""
			_, err := client.Commit(context.Background(), rows, ModeSales, cc, "")
			Expect(errors.Is(err, ErrNoDate)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})

		It("should return the generic failure when storage rejects the batch", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadRequest, `{"error":"Invalid UserId(s) provided"}`))

			_, err := client.Commit(context.Background(), rows, ModeSales, cc, "")
			Expect(errors.Is(err, ErrCommitFailed)).To(BeTrue())
		})

		It("should return the generic failure when storage is unreachable", func() {
			client = NewClient("http://127.0.0.1:1", DefaultMapping())
			_, err := client.Commit(context.Background(), rows, ModeSales, cc, "")
			Expect(errors.Is(err, ErrCommitFailed)).To(BeTrue())
		})
	})
})
