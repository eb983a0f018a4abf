package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/harvest/internal/database"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append(args, "--quiet"))
	err := rootCmd.Execute()
	return buf.String(), err
}

func openResult(t *testing.T, path string) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), "sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func rows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

const scrapedCSV = `cover,title,author,binding,list_price,price,stock,isbn,publisher,publication_date,size,categories,url
https://www.bookdepot.com/covers/1.jpg,Nine Rivers,J. Okafor,Hardcover,$16.99,$1.50,1000+,9780000000017,Harbor & Lane,2019-11-02,"8.25"" l x 5.5"" w x 1.1"" h","Fiction, Romance",https://www.bookdepot.com/Store/Detail/1
https://www.bookdepot.com/covers/2.jpg,Salt and Iron,M. Reyes,Paperback,$12.99,$2.00,lots,9780000000024,Harbor & Lane,2020-01-15,,Romance,https://www.bookdepot.com/Store/Detail/2
`

func TestLoadBookdepot(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "bookdepot.csv")
	require.NoError(t, os.WriteFile(in, []byte(scrapedCSV), 0o600))
	dbPath := filepath.Join(dir, "harvest.db")

	_, err := execute(t, "load", "bookdepot", "--in", in, "--db", "sqlite3:"+dbPath)
	require.NoError(t, err)

	db := openResult(t, dbPath)
	assert.Equal(t, 1, rows(t, db, "BOOKDEPOT_FICTION_ROMANCE"))

	var length float64
	require.NoError(t, db.Conn().QueryRow("SELECT LENGTH FROM BOOKDEPOT_FICTION_ROMANCE").Scan(&length))
	assert.Equal(t, 8.25, length)

	runs, err := db.Runs(context.Background(), "load.bookdepot", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Records)
	assert.Equal(t, 1, runs[0].Failures)

	out, err := execute(t, "runs", "--db", "sqlite3:"+dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "load.bookdepot")
}

func TestLoadBookdepot_MissingInput(t *testing.T) {
	_, err := execute(t, "load", "bookdepot", "--in", filepath.Join(t.TempDir(), "none.csv"))
	assert.ErrorContains(t, err, "input file")
}

const purchasesCSV = `"ISBN","Genre","Book Title","Authors","Month","Year","Purchase Price","Count to Buy","Book Url","Purchase Quantity"
"978-1","Romance","Nine Rivers","J. Okafor","March","2024","$1,204.50","","https://www.bookdepot.com/Store/Detail/1","12"
"","Fiction","Salt and Iron","M. Reyes","April","2024","$3.00","2","https://www.bookdepot.com/Store/Detail/2","4"
`

func TestSheet(t *testing.T) {
	body := purchasesCSV
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dbPath := filepath.Join(t.TempDir(), "harvest.db")

	_, err := execute(t, "sheet", "--url", srv.URL, "--db", "sqlite3:"+dbPath, "--retries", "0")
	require.NoError(t, err)

	db := openResult(t, dbPath)
	assert.Equal(t, 2, rows(t, db, "BOOKS_PURCHASED"))

	var price string
	require.NoError(t, db.Conn().QueryRow("SELECT PURCHASE_PRICE FROM BOOKS_PURCHASED WHERE ISBN = '978-1'").Scan(&price))
	assert.Equal(t, "1204.5", price)

	// A worksheet without the purchase headings leaves the table alone.
	body = "\"Name\",\"Total\"\n\"x\",\"1\"\n"
	_, err = execute(t, "sheet", "--url", srv.URL, "--db", "sqlite3:"+dbPath, "--retries", "0")
	require.NoError(t, err)
	assert.Equal(t, 2, rows(t, db, "BOOKS_PURCHASED"))
}

func TestBookdepot_RejectsUnknownFetchMode(t *testing.T) {
	_, err := execute(t, "bookdepot", "--fetch-mode", "carrier-pigeon", "--out", filepath.Join(t.TempDir(), "out.csv"))
	assert.ErrorContains(t, err, "fetch mode")
}

func TestCratejoy_RequiresCredentials(t *testing.T) {
	t.Setenv("CRATEJOY_USER", "")
	t.Setenv("CRATEJOY_PASSWORD", "")
	t.Setenv("CRATEJOY_SECRET_KEY", "")

	_, err := execute(t, "cratejoy", "subscriptions", "--db", "sqlite3:"+filepath.Join(t.TempDir(), "h.db"))
	assert.ErrorContains(t, err, "CRATEJOY_USER is not set")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "harvest ")
}
