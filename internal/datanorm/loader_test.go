package datanorm

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	gotKey  string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotKey = *in.Bucket + "/" + *in.Key
	body, ok := f.objects[f.gotKey]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestLoaderLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.csv")
	require.NoError(t, os.WriteFile(path, []byte("CustomerID,Churn\n1,0\n"), 0644))

	tbl, err := NewLoader(nil, nil, "").Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "0"}}, tbl.Rows)
}

func TestLoaderS3(t *testing.T) {
	s3c := &fakeS3{objects: map[string]string{"radar-data/exports/customers.csv": "CustomerID,Churn\n9,1\n"}}
	l := NewLoader(s3c, nil, "")

	tbl, err := l.Load(context.Background(), "s3://radar-data/exports/customers.csv")
	require.NoError(t, err)
	assert.Equal(t, "radar-data/exports/customers.csv", s3c.gotKey)
	assert.Equal(t, [][]string{{"9", "1"}}, tbl.Rows)

	_, err = l.Load(context.Background(), "s3://radar-data")
	assert.Error(t, err)

	_, err = NewLoader(nil, nil, "").Load(context.Background(), "s3://radar-data/x.csv")
	assert.Error(t, err)
}

func TestLoaderSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query := "SELECT customer_id, churn, tenure FROM customers"
	mock.ExpectQuery("SELECT customer_id, churn, tenure FROM customers").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "churn", "tenure"}).
			AddRow("50001", int64(1), 4.5).
			AddRow("50002", int64(0), nil))

	tbl, err := NewLoader(nil, db, query).Load(context.Background(), "sql://")
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_id", "churn", "tenure"}, tbl.Header)
	assert.Equal(t, [][]string{{"50001", "1", "4.5"}, {"50002", "0", ""}}, tbl.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoaderSQLNotConfigured(t *testing.T) {
	_, err := NewLoader(nil, nil, "").Load(context.Background(), "sql://")
	assert.Error(t, err)
}
