package datanorm

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the subset of the S3 client the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader opens datasets by URI:
//
//	/path/to/customers.csv     local CSV file
//	s3://bucket/key.csv        CSV object in S3
//	sql://                     the configured SQL query (postgres or snowflake)
type Loader struct {
	s3    ObjectGetter
	db    *sql.DB
	query string
}

// NewLoader builds a loader. Either backend may be nil; URIs that need a
// missing backend fail at Load time.
func NewLoader(s3Client ObjectGetter, db *sql.DB, query string) *Loader {
	return &Loader{s3: s3Client, db: db, query: query}
}

// Load reads the dataset at uri into a raw table.
func (l *Loader) Load(ctx context.Context, uri string) (Table, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		return l.loadS3(ctx, uri)
	case strings.HasPrefix(uri, "sql://"):
		if l.db == nil || l.query == "" {
			return Table{}, fmt.Errorf("sql dataset requested but no database/query configured")
		}
		return ReadSQL(ctx, l.db, l.query)
	default:
		f, err := os.Open(uri)
		if err != nil {
			return Table{}, fmt.Errorf("open dataset: %w", err)
		}
		defer f.Close()
		return ReadCSV(bufio.NewReaderSize(f, 256*1024))
	}
}

func (l *Loader) loadS3(ctx context.Context, uri string) (Table, error) {
	if l.s3 == nil {
		return Table{}, fmt.Errorf("s3 dataset requested but no S3 client configured")
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return Table{}, fmt.Errorf("invalid S3 URI %q", uri)
	}

	log.Printf("[datanorm] loading s3://%s/%s", bucket, key)
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Table{}, fmt.Errorf("get S3 object: %w", err)
	}
	defer out.Body.Close()

	return ReadCSV(bufio.NewReaderSize(out.Body, 256*1024))
}

// ReadSQL runs query and returns its result set as a table. Column names
// become the header; NULLs become empty cells.
func ReadSQL(ctx context.Context, db *sql.DB, query string) (Table, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Table{}, fmt.Errorf("query dataset: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("dataset columns: %w", err)
	}

	t := Table{Header: cols}
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return Table{}, fmt.Errorf("scan dataset row: %w", err)
		}
		row := make([]string, len(cols))
		for i, c := range cells {
			if c.Valid {
				row[i] = c.String
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate dataset: %w", err)
	}
	return t, nil
}
