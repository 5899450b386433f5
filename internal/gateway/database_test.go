package gateway

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveUpload", func() {
		var (
			record *UploadRecord
			err    error
		)

		BeforeEach(func() {
			record = &UploadRecord{
				ID:         "upload-id-123",
				StoredName: "receipt.png",
				TmpPath:    "/tmp/upload-id-123.png",
				CreatedAt:  time.Now(),
			}
		})

		JustBeforeEach(func() {
			err = db.SaveUpload(record)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the record to the database", func() {
				saved, getErr := db.GetUpload("upload-id-123")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("upload-id-123"))
			})
		})
	})

	Describe("GetUpload", func() {
		var (
			uploadID string
			record   *UploadRecord
			err      error
		)

		JustBeforeEach(func() {
			record, err = db.GetUpload(uploadID)
		})

		When("the record exists", func() {
			BeforeEach(func() {
				uploadID = "upload-id-123"
				Expect(db.SaveUpload(&UploadRecord{
					ID:         "upload-id-123",
					StoredName: "receipt.png",
					TmpPath:    "/tmp/upload-id-123.png",
					CreatedAt:  time.Now(),
				})).NotTo(HaveOccurred())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the stored name", func() {
				Expect(record.StoredName).To(Equal("receipt.png"))
			})

			It("should return the tmp path", func() {
				Expect(record.TmpPath).To(Equal("/tmp/upload-id-123.png"))
			})
		})

		When("the record does not exist", func() {
			var expectedErr error

			BeforeEach(func() {
				uploadID = "nonexistent"
				expectedErr = errors.New("upload not found: nonexistent")
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(expectedErr))
			})
		})
	})

	Describe("DeleteUpload", func() {
		var (
			uploadID string
			err      error
		)

		JustBeforeEach(func() {
			err = db.DeleteUpload(uploadID)
		})

		When("the record exists", func() {
			BeforeEach(func() {
				uploadID = "upload-id-123"
				Expect(db.SaveUpload(&UploadRecord{ID: "upload-id-123"})).NotTo(HaveOccurred())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should remove the record", func() {
				_, getErr := db.GetUpload("upload-id-123")
				Expect(getErr).To(HaveOccurred())
			})
		})

		When("the record does not exist", func() {
			BeforeEach(func() {
				uploadID = "nonexistent"
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("Close", func() {
		It("should not return an error", func() {
			Expect(db.Close()).NotTo(HaveOccurred())
		})
	})
})
