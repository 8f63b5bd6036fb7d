package parser

import "fmt"

// MemoryImage is an embedded image held in memory.
type MemoryImage struct {
	Format string
	Data   []byte
}

// MemoryPage is one page of a MemoryDocument.
type MemoryPage struct {
	Text   string
	Images []MemoryImage
}

// MemoryDocument is a Document built from in-memory pages.
type MemoryDocument struct {
	Pages []MemoryPage
}

func (d *MemoryDocument) PageCount() int { return len(d.Pages) }

func (d *MemoryDocument) page(n int) (*MemoryPage, error) {
	if n < 1 || n > len(d.Pages) {
		return nil, fmt.Errorf("page %d out of range", n)
	}
	return &d.Pages[n-1], nil
}

func (d *MemoryDocument) PageText(n int) (string, error) {
	p, err := d.page(n)
	if err != nil {
		return "", err
	}
	return p.Text, nil
}

func (d *MemoryDocument) PageImages(n int) ([]ImageRef, error) {
	p, err := d.page(n)
	if err != nil {
		return nil, err
	}
	refs := make([]ImageRef, len(p.Images))
	for i := range p.Images {
		refs[i] = ImageRef{Page: n, Index: i + 1}
	}
	return refs, nil
}

func (d *MemoryDocument) ImageData(ref ImageRef) ([]byte, string, error) {
	p, err := d.page(ref.Page)
	if err != nil {
		return nil, "", err
	}
	if ref.Index < 1 || ref.Index > len(p.Images) {
		return nil, "", fmt.Errorf("page %d has no image %d", ref.Page, ref.Index)
	}
	img := p.Images[ref.Index-1]
	return img.Data, img.Format, nil
}

func (d *MemoryDocument) Close() error { return nil }
