package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDF reads page text with ledongthuc/pdf and embedded images with pdfcpu.
// It tries the Go library first for text, then falls back to pdftotext if
// enabled.
type PDF struct {
	path              string
	file              *os.File
	text              *pdflib.Reader
	images            *model.Context
	FallbackPdftotext bool

	// Decoded images per page, filled on first access.
	pageImages map[int][]embeddedImage
}

type embeddedImage struct {
	ref    ImageRef
	data   []byte
	format string
	err    error // set when this image alone could not be extracted
}

// OpenPDF parses the PDF at path. Any failure to read the document
// structure is returned; callers treat it as fatal.
func OpenPDF(path string) (*PDF, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf text layer: %w", err)
	}

	rs, err := os.Open(path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer rs.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	return &PDF{
		path:       path,
		file:       f,
		text:       reader,
		images:     ctx,
		pageImages: make(map[int][]embeddedImage),
	}, nil
}

func (p *PDF) PageCount() int {
	return p.text.NumPage()
}

// PageText returns the plain text of a page.
func (p *PDF) PageText(page int) (text string, err error) {
	if page < 1 || page > p.PageCount() {
		return "", fmt.Errorf("page %d out of range", page)
	}
	text, err = p.nativeText(page)
	if err != nil && p.FallbackPdftotext {
		text, err = extractPdftotext(p.path, page)
	}
	if err != nil {
		return "", fmt.Errorf("extract text page %d: %w", page, err)
	}
	return text, nil
}

func (p *PDF) nativeText(page int) (text string, err error) {
	// ledongthuc/pdf panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf text panic: %v", r)
		}
	}()
	pg := p.text.Page(page)
	if pg.V.IsNull() {
		return "", nil
	}
	return pg.GetPlainText(nil)
}

func extractPdftotext(path string, page int) (string, error) {
	n := strconv.Itoa(page)
	cmd := exec.Command("pdftotext", "-f", n, "-l", n, "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return strings.TrimRight(string(out), "\f"), nil
}

// PageImages lists the page's embedded images ordered by object number,
// which follows the order they were written into the file. Page thumbnails
// are not embedded images and are left out. An image whose stream cannot
// be decoded keeps its place in the list; ImageData reports its error.
func (p *PDF) PageImages(page int) ([]ImageRef, error) {
	imgs, err := p.loadPageImages(page)
	if err != nil {
		return nil, err
	}
	refs := make([]ImageRef, len(imgs))
	for i, img := range imgs {
		refs[i] = img.ref
	}
	return refs, nil
}

func (p *PDF) ImageData(ref ImageRef) ([]byte, string, error) {
	imgs, err := p.loadPageImages(ref.Page)
	if err != nil {
		return nil, "", err
	}
	if ref.Index < 1 || ref.Index > len(imgs) {
		return nil, "", fmt.Errorf("page %d has no image %d", ref.Page, ref.Index)
	}
	img := imgs[ref.Index-1]
	if img.err != nil {
		return nil, "", img.err
	}
	return img.data, img.format, nil
}

func (p *PDF) loadPageImages(page int) ([]embeddedImage, error) {
	if imgs, ok := p.pageImages[page]; ok {
		return imgs, nil
	}
	if page < 1 || page > p.images.PageCount {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	if p.images.Optimize == nil {
		return nil, fmt.Errorf("extract images page %d: document not optimized", page)
	}

	objNrs := pdfcpu.ImageObjNrs(p.images, page)
	sort.Ints(objNrs)

	imgs := make([]embeddedImage, 0, len(objNrs))
	for _, objNr := range objNrs {
		obj := p.images.Optimize.ImageObjects[objNr]
		if obj == nil {
			continue
		}
		ref := ImageRef{Page: page, Index: len(imgs) + 1, ObjNr: objNr}
		data, format, ok, err := p.extractImage(obj, page, objNr)
		if err != nil {
			imgs = append(imgs, embeddedImage{ref: ref, err: err})
			continue
		}
		if !ok {
			continue
		}
		imgs = append(imgs, embeddedImage{ref: ref, data: data, format: format})
	}

	p.pageImages[page] = imgs
	return imgs, nil
}

// extractImage decodes one image object. ok is false for objects pdfcpu
// does not treat as images, such as unsupported masks.
func (p *PDF) extractImage(obj *model.ImageObject, page, objNr int) (data []byte, format string, ok bool, err error) {
	// pdfcpu can panic on malformed image dictionaries.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract image obj %d: panic: %v", objNr, r)
		}
	}()

	img, err := pdfcpu.ExtractImage(p.images, obj.ImageDict, false, obj.ResourceNames[page-1], objNr, false)
	if err != nil {
		return nil, "", false, fmt.Errorf("extract image obj %d: %w", objNr, err)
	}
	if img == nil || img.Reader == nil {
		return nil, "", false, nil
	}
	data, err = io.ReadAll(img)
	if err != nil {
		return nil, "", false, fmt.Errorf("read image obj %d: %w", objNr, err)
	}
	return data, strings.ToLower(img.FileType), true, nil
}

func (p *PDF) Close() error {
	return p.file.Close()
}
