package parser_test

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/dgallion1/quizgest/internal/collect"
	"github.com/dgallion1/quizgest/internal/parser"
)

func solidImage(c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// writeImagePDF builds a two-page PDF whose first page holds a PNG and whose
// second page holds a JPEG.
func writeImagePDF(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	pngPath := filepath.Join(dir, "red.png")
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, solidImage(color.NRGBA{R: 255, A: 255})); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pngPath, pngBuf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	jpgPath := filepath.Join(dir, "blue.jpg")
	var jpgBuf bytes.Buffer
	if err := jpeg.Encode(&jpgBuf, solidImage(color.NRGBA{B: 255, A: 255}), nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jpgPath, jpgBuf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "quiz.pdf")
	if err := api.ImportImagesFile([]string{pngPath, jpgPath}, out, nil, nil); err != nil {
		t.Fatalf("import images: %v", err)
	}
	return out
}

// writeRawPDF serializes numbered objects into a PDF with a classic xref
// table. objs[0] is object 1 and must be the catalog.
func writeRawPDF(t *testing.T, objs [][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(obj)
		buf.WriteString("\nendobj\n")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	path := filepath.Join(t.TempDir(), "raw.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func streamObj(dict string, data []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<< %s /Length %d >>\nstream\n", dict, len(data))
	b.Write(data)
	b.WriteString("\nendstream")
	return b.Bytes()
}

// writeDamagedSiblingPDF builds a one-page PDF with two Flate images: the
// first decodes cleanly, the second carries a stream that is not zlib data.
func writeDamagedSiblingPDF(t *testing.T) string {
	t.Helper()

	var pixels bytes.Buffer
	zw := zlib.NewWriter(&pixels)
	if _, err := zw.Write(bytes.Repeat([]byte{0, 128, 255}, 4)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	imgDict := "/Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /FlateDecode"
	content := []byte("q 20 0 0 20 10 10 cm /Im1 Do Q q 20 0 0 20 40 10 cm /Im2 Do Q")

	return writeRawPDF(t, [][]byte{
		[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
		[]byte("<< /Type /Pages /Kids [3 0 R] /Count 1 >>"),
		[]byte("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 100] /Resources << /XObject << /Im1 4 0 R /Im2 5 0 R >> >> /Contents 6 0 R >>"),
		streamObj(imgDict, pixels.Bytes()),
		streamObj(imgDict, []byte("this stream is not zlib data")),
		streamObj("", content),
	})
}

func TestOpenPDF_EmbeddedImagesPerPage(t *testing.T) {
	doc, err := parser.OpenPDF(writeImagePDF(t))
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	defer doc.Close()

	if got := doc.PageCount(); got != 2 {
		t.Fatalf("PageCount = %d, want 2", got)
	}

	wantFormats := map[int]string{1: "png", 2: "jpg"}
	for page, want := range wantFormats {
		refs, err := doc.PageImages(page)
		if err != nil {
			t.Fatalf("PageImages(%d): %v", page, err)
		}
		if len(refs) != 1 {
			t.Fatalf("PageImages(%d) returned %d refs, want 1", page, len(refs))
		}
		if refs[0].Page != page || refs[0].Index != 1 {
			t.Errorf("page %d ref = %+v, want page %d index 1", page, refs[0], page)
		}
		data, format, err := doc.ImageData(refs[0])
		if err != nil {
			t.Fatalf("ImageData(%+v): %v", refs[0], err)
		}
		if format != want {
			t.Errorf("page %d format = %q, want %q", page, format, want)
		}
		if len(data) == 0 {
			t.Errorf("page %d image data is empty", page)
		}
	}

	if _, err := doc.PageImages(3); err == nil {
		t.Error("expected error for page past the end")
	}
}

func TestHarvestImages_RealPDFNaming(t *testing.T) {
	doc, err := parser.OpenPDF(writeImagePDF(t))
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	defer doc.Close()

	dir := filepath.Join(t.TempDir(), "images")
	harvested, err := collect.HarvestImages(doc, collect.HarvestOptions{
		ImageDir: dir,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("HarvestImages: %v", err)
	}

	var names []string
	for _, h := range harvested {
		names = append(names, filepath.Base(h.Path))
		if _, err := os.Stat(h.Path); err != nil {
			t.Errorf("harvested file missing: %v", err)
		}
	}
	want := []string{"page1_image1.png", "page2_image1.jpg"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("harvested names = %v, want %v", names, want)
	}
}

func TestOpenPDF_DamagedImageKeepsSibling(t *testing.T) {
	doc, err := parser.OpenPDF(writeDamagedSiblingPDF(t))
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	defer doc.Close()

	refs, err := doc.PageImages(1)
	if err != nil {
		t.Fatalf("PageImages: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("PageImages returned %d refs, want 2", len(refs))
	}
	if !sort.SliceIsSorted(refs, func(i, j int) bool { return refs[i].ObjNr < refs[j].ObjNr }) {
		t.Errorf("refs not in object order: %+v", refs)
	}

	data, format, err := doc.ImageData(refs[0])
	if err != nil {
		t.Fatalf("ImageData(first): %v", err)
	}
	if format != "png" || len(data) == 0 {
		t.Errorf("first image = %d bytes %q, want png data", len(data), format)
	}

	if _, _, err := doc.ImageData(refs[1]); err == nil {
		t.Error("expected error for the damaged image")
	}
}

func TestHarvestImages_DamagedImageSkippedAlone(t *testing.T) {
	doc, err := parser.OpenPDF(writeDamagedSiblingPDF(t))
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	defer doc.Close()

	harvested, err := collect.HarvestImages(doc, collect.HarvestOptions{
		ImageDir: filepath.Join(t.TempDir(), "images"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("HarvestImages: %v", err)
	}
	if len(harvested) != 1 {
		t.Fatalf("harvested %d images, want 1", len(harvested))
	}
	if got := filepath.Base(harvested[0].Path); got != "page1_image1.png" {
		t.Errorf("harvested name = %q, want page1_image1.png", got)
	}
}
