package catalog

const productsQuery = `query Products($first: Int!, $after: String, $query: String) {
  products(first: $first, after: $after, query: $query) {
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {
      id
      title
      status
      tags
      variants(first: 100) {
        nodes {
          id
          barcode
          inventoryQuantity
        }
      }
      metafields(first: 20) {
        nodes {
          namespace
          key
          value
        }
      }
    }
  }
}`

const productUpdateMutation = `mutation productUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      id
      tags
      status
    }
    userErrors {
      field
      message
    }
  }
}`
